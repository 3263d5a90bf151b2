package analysis

import (
	"math"
	"sort"
)

const (
	tempoMinBPM = 30.0
	tempoMaxBPM = 300.0
	// iioTolerance is the fraction of the median inter-beat interval an
	// interval may deviate by and still count as stable.
	ioiTolerance = 0.1
)

// TempoEstimate summarizes beat tracking over the full recording.
type TempoEstimate struct {
	BPM float64
	// Stability is the fraction of inter-onset intervals within
	// tolerance of the median interval.
	Stability  float64
	Confidence float64
}

// estimateTempo derives BPM from the median inter-onset interval,
// octave-folded into the musically plausible range.
func estimateTempo(onsets []Onset) TempoEstimate {
	if len(onsets) < 3 {
		return TempoEstimate{Confidence: 0.1}
	}

	iois := make([]float64, 0, len(onsets)-1)
	for i := 1; i < len(onsets); i++ {
		ioi := onsets[i].TimeSec - onsets[i-1].TimeSec
		if ioi > 0 {
			iois = append(iois, ioi)
		}
	}
	if len(iois) == 0 {
		return TempoEstimate{Confidence: 0.1}
	}

	sorted := append([]float64(nil), iois...)
	sort.Float64s(sorted)
	median := sorted[len(sorted)/2]
	if median <= 0 {
		return TempoEstimate{Confidence: 0.1}
	}

	bpm := 60.0 / median
	for bpm < tempoMinBPM {
		bpm *= 2
	}
	for bpm > tempoMaxBPM {
		bpm /= 2
	}

	var stable int
	for _, ioi := range iois {
		if math.Abs(ioi-median) <= ioiTolerance*median {
			stable++
		}
	}
	stability := float64(stable) / float64(len(iois))

	confidence := math.Min(1, float64(len(iois))/20.0)
	return TempoEstimate{BPM: bpm, Stability: stability, Confidence: confidence}
}

package analysis

import "math"

const (
	onsetWindow = 1024
	onsetHop    = 512
	// minOnsetGapSec suppresses double-triggering on one attack.
	minOnsetGapSec = 0.1
)

// Onset is one detected note attack.
type Onset struct {
	TimeSec  float64
	Strength float64
}

// detectOnsets finds note attacks via positive energy flux with
// adaptive peak picking. Silent or steady audio yields few or no
// onsets, which downstream tempo estimation treats as low confidence.
func detectOnsets(samples []float64, sampleRate int) []Onset {
	if len(samples) < onsetWindow*2 {
		return nil
	}

	nFrames := (len(samples) - onsetWindow) / onsetHop
	energies := make([]float64, nFrames)
	for i := 0; i < nFrames; i++ {
		start := i * onsetHop
		var e float64
		for _, s := range samples[start : start+onsetWindow] {
			e += s * s
		}
		energies[i] = e / onsetWindow
	}

	flux := make([]float64, nFrames)
	for i := 1; i < nFrames; i++ {
		d := energies[i] - energies[i-1]
		if d > 0 {
			flux[i] = d
		}
	}

	var mean float64
	for _, f := range flux {
		mean += f
	}
	mean /= float64(len(flux))
	var variance float64
	for _, f := range flux {
		variance += (f - mean) * (f - mean)
	}
	variance /= float64(len(flux))
	threshold := mean + 1.5*math.Sqrt(variance)
	if threshold <= 0 {
		return nil
	}

	minGapFrames := int(minOnsetGapSec * float64(sampleRate) / onsetHop)
	if minGapFrames < 1 {
		minGapFrames = 1
	}

	var onsets []Onset
	lastFrame := -minGapFrames
	for i := 1; i < nFrames-1; i++ {
		if flux[i] < threshold || flux[i] < flux[i-1] || flux[i] < flux[i+1] {
			continue
		}
		if i-lastFrame < minGapFrames {
			continue
		}
		onsets = append(onsets, Onset{
			TimeSec:  float64(i*onsetHop) / float64(sampleRate),
			Strength: math.Min(1, flux[i]/(threshold*2)),
		})
		lastFrame = i
	}

	return onsets
}

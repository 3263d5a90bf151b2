package analysis

import "math"

const (
	vibratoMinRateHz = 3.0
	vibratoMaxRateHz = 9.0
	// vibratoTrendSec is the moving-average window that removes the
	// underlying melodic contour before modulation is measured.
	vibratoTrendSec = 0.4
)

// VibratoEstimate describes periodic pitch modulation where present.
type VibratoEstimate struct {
	Detected      bool
	RateHz        float64
	DepthSemitone float64
}

// estimateVibrato measures rate and depth of pitch modulation over a
// fine-grained pitch track. The track must be sampled fast enough to
// resolve modulation up to vibratoMaxRateHz.
func estimateVibrato(track []pitchFrame, hopSec float64) VibratoEstimate {
	if hopSec <= 0 || 1/hopSec < 2*vibratoMaxRateHz {
		return VibratoEstimate{}
	}

	var best VibratoEstimate
	var bestDur float64

	segStart := -1
	for i := 0; i <= len(track); i++ {
		voiced := i < len(track) && track[i].freq > 0 && track[i].confidence > 0.5
		if voiced && segStart < 0 {
			segStart = i
			continue
		}
		if !voiced && segStart >= 0 {
			seg := track[segStart:i]
			segStart = -1

			est, dur := measureSegment(seg, hopSec)
			if est.Detected && dur > bestDur {
				best = est
				bestDur = dur
			}
		}
	}

	return best
}

func measureSegment(seg []pitchFrame, hopSec float64) (VibratoEstimate, float64) {
	dur := float64(len(seg)) * hopSec
	if dur < 0.5 {
		return VibratoEstimate{}, 0
	}

	// Convert to cents around the segment mean.
	var mean float64
	for _, f := range seg {
		mean += f.freq
	}
	mean /= float64(len(seg))
	if mean <= 0 {
		return VibratoEstimate{}, 0
	}

	cents := make([]float64, len(seg))
	for i, f := range seg {
		cents[i] = 1200 * math.Log2(f.freq/mean)
	}

	// Detrend with a moving average so slides and slow drift do not
	// register as modulation.
	trendWin := int(vibratoTrendSec / hopSec)
	if trendWin < 3 {
		trendWin = 3
	}
	detrended := make([]float64, len(cents))
	for i := range cents {
		lo := i - trendWin/2
		hi := i + trendWin/2
		if lo < 0 {
			lo = 0
		}
		if hi >= len(cents) {
			hi = len(cents) - 1
		}
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += cents[j]
		}
		detrended[i] = cents[i] - sum/float64(hi-lo+1)
	}

	// Modulation rate from zero crossings, depth from RMS amplitude.
	var crossings int
	for i := 1; i < len(detrended); i++ {
		if (detrended[i-1] < 0) != (detrended[i] < 0) {
			crossings++
		}
	}
	rate := float64(crossings) / (2 * dur)

	var sumSq float64
	for _, d := range detrended {
		sumSq += d * d
	}
	rmsCents := math.Sqrt(sumSq / float64(len(detrended)))
	depthSemitones := rmsCents * math.Sqrt2 / 100

	if rate < vibratoMinRateHz || rate > vibratoMaxRateHz || depthSemitones < 0.05 {
		return VibratoEstimate{}, 0
	}

	return VibratoEstimate{Detected: true, RateHz: rate, DepthSemitone: depthSemitones}, dur
}

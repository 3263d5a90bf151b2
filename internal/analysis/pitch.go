package analysis

import "math"

const (
	pitchMinHz = 50.0
	pitchMaxHz = 2000.0
)

// detectPitch estimates the fundamental frequency of one frame using
// normalized autocorrelation. Confidence is the height of the chosen
// autocorrelation peak relative to the zero-lag energy, so noise and
// silence come back with low confidence rather than failing.
func detectPitch(frame []float64, sampleRate int) (freq, confidence float64) {
	n := len(frame)
	if n == 0 {
		return 0, 0
	}

	minLag := int(float64(sampleRate) / pitchMaxHz)
	maxLag := int(float64(sampleRate) / pitchMinHz)
	if maxLag >= n {
		maxLag = n - 1
	}
	if minLag < 2 || minLag >= maxLag {
		return 0, 0
	}

	var energy float64
	for _, s := range frame {
		energy += s * s
	}
	if energy == 0 {
		return 0, 0
	}

	bestLag := 0
	bestCorr := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64
		for i := 0; i < n-lag; i++ {
			corr += frame[i] * frame[i+lag]
		}
		corr /= energy
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}

	if bestLag == 0 || bestCorr <= 0 {
		return 0, 0
	}

	// Parabolic interpolation around the peak for sub-sample lag accuracy.
	lag := float64(bestLag)
	if bestLag > minLag && bestLag < maxLag {
		prev := autocorrAt(frame, bestLag-1, energy)
		next := autocorrAt(frame, bestLag+1, energy)
		denom := prev - 2*bestCorr + next
		if denom != 0 {
			lag += 0.5 * (prev - next) / denom
		}
	}

	freq = float64(sampleRate) / lag
	confidence = math.Min(1, math.Max(0, bestCorr))
	return freq, confidence
}

func autocorrAt(frame []float64, lag int, energy float64) float64 {
	var corr float64
	for i := 0; i < len(frame)-lag; i++ {
		corr += frame[i] * frame[i+lag]
	}
	return corr / energy
}

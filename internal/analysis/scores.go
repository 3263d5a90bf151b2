package analysis

import "math"

// Fixed score weights. Consistency weighs the three stability
// sub-scores evenly-ish, proficiency leans on tempo and pitch
// accuracy, expression leans on dynamics and vibrato.
const (
	wConsistencyTempo    = 0.4
	wConsistencyPitch    = 0.3
	wConsistencyDynamics = 0.3

	wProficiencyTempo    = 0.45
	wProficiencyPitch    = 0.45
	wProficiencyDynamics = 0.10

	wExpressionDynamics = 0.5
	wExpressionVibrato  = 0.3
	wExpressionRange    = 0.2
)

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// pitchStabilityScore scores the inverse of frame-to-frame pitch
// variance, normalized to 0-100. Input is the voiced pitch track in Hz.
func pitchStabilityScore(voiced []float64) float64 {
	if len(voiced) < 2 {
		return 0
	}

	// Frame-to-frame movement in semitones; sustained notes score high,
	// jitter scores low.
	var sumSq float64
	var n int
	for i := 1; i < len(voiced); i++ {
		if voiced[i] <= 0 || voiced[i-1] <= 0 {
			continue
		}
		d := 12 * math.Log2(voiced[i]/voiced[i-1])
		sumSq += d * d
		n++
	}
	if n == 0 {
		return 0
	}

	stability := 1 / (1 + sumSq/float64(n))
	return clampScore(stability * 100)
}

// dynamicsStabilityScore scores loudness steadiness from the dB track.
func dynamicsStabilityScore(dbTrack []float64) float64 {
	if len(dbTrack) < 2 {
		return 0
	}

	var mean float64
	for _, db := range dbTrack {
		mean += db
	}
	mean /= float64(len(dbTrack))

	var variance float64
	for _, db := range dbTrack {
		variance += (db - mean) * (db - mean)
	}
	variance /= float64(len(dbTrack))

	// 36 dB^2 (6 dB standard deviation) halves the score.
	stability := 1 / (1 + variance/36)
	return clampScore(stability * 100)
}

// vibratoScore rewards controlled vibrato; its absence is neutral-low
// rather than zero so non-vibrato instruments are not punished hard.
func vibratoScore(v VibratoEstimate) float64 {
	if !v.Detected {
		return 20
	}
	rateQuality := 1 - math.Abs(v.RateHz-5.5)/5.5
	depthQuality := math.Min(1, v.DepthSemitone/0.6)
	return clampScore((0.5*rateQuality + 0.5*depthQuality) * 100)
}

// dynamicRangeScore rewards expressive use of loudness range; ~30 dB
// of range scores full marks.
func dynamicRangeScore(rangeDB float64) float64 {
	return clampScore(rangeDB / 30 * 100)
}

type aggregateScores struct {
	tempoScore           float64
	pitchScore           float64
	dynamicsScore        float64
	overallConsistency   float64
	technicalProficiency float64
	musicalExpression    float64
}

func combineScores(tempo TempoEstimate, voicedPitch []float64, dbTrack []float64, vibrato VibratoEstimate, dynamicRangeDB float64) aggregateScores {
	s := aggregateScores{
		tempoScore:    clampScore(tempo.Stability * 100),
		pitchScore:    pitchStabilityScore(voicedPitch),
		dynamicsScore: dynamicsStabilityScore(dbTrack),
	}

	s.overallConsistency = clampScore(
		wConsistencyTempo*s.tempoScore +
			wConsistencyPitch*s.pitchScore +
			wConsistencyDynamics*s.dynamicsScore)

	s.technicalProficiency = clampScore(
		wProficiencyTempo*s.tempoScore +
			wProficiencyPitch*s.pitchScore +
			wProficiencyDynamics*s.dynamicsScore)

	s.musicalExpression = clampScore(
		wExpressionDynamics*s.dynamicsScore +
			wExpressionVibrato*vibratoScore(vibrato) +
			wExpressionRange*dynamicRangeScore(dynamicRangeDB))

	return s
}

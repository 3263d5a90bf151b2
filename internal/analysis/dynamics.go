package analysis

import "math"

// silenceFloorDB is the loudness reported for effectively silent frames.
const silenceFloorDB = -90.0

// frameLoudnessDB computes RMS loudness in dBFS for one frame.
func frameLoudnessDB(frame []float64) float64 {
	if len(frame) == 0 {
		return silenceFloorDB
	}

	var sum float64
	for _, s := range frame {
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	if rms <= 0 {
		return silenceFloorDB
	}

	db := 20 * math.Log10(rms)
	if db < silenceFloorDB {
		db = silenceFloorDB
	}
	return db
}

// isAudible reports whether a frame is loud enough to carry musical
// content worth analyzing for pitch.
func isAudible(db float64) bool {
	return db > -60
}

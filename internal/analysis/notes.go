package analysis

import (
	"fmt"
	"math"
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName maps a frequency in Hz to its nearest note name with
// octave, e.g. 440 -> "A4".
func NoteName(freq float64) string {
	if freq <= 0 {
		return ""
	}

	// MIDI note number, A4 = 440 Hz = 69.
	midi := int(math.Round(69 + 12*math.Log2(freq/440)))
	if midi < 0 {
		midi = 0
	}
	octave := midi/12 - 1
	return fmt.Sprintf("%s%d", noteNames[midi%12], octave)
}

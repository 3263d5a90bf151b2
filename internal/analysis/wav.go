package analysis

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"

	"github.com/practicetrack/api/internal/model"
)

// decodeWAV reads a WAV file into normalized mono float64 samples in
// [-1, 1]. Multi-channel input is averaged down to mono.
func decodeWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, model.NewPermanentError(model.StageAnalyzing, "audio extract unreadable", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, model.NewPermanentError(model.StageAnalyzing, "failed to decode audio extract", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, model.NewPermanentError(model.StageAnalyzing, "audio extract contains no samples", fmt.Errorf("empty PCM buffer"))
	}

	sampleRate := buf.Format.SampleRate
	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}

	scale := float64(int(1) << (dec.BitDepth - 1))
	if dec.BitDepth == 0 {
		scale = float64(int(1) << 15)
	}

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch])
		}
		samples[i] = sum / float64(channels) / scale
	}

	return samples, sampleRate, nil
}

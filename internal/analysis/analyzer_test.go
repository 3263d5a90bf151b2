package analysis

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicetrack/api/internal/model"
)

const testSampleRate = 8000

// writeWAV encodes float samples to a 16-bit mono WAV file.
func writeWAV(t *testing.T, samples []float64, sampleRate int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "extract.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s * 32000)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	return path
}

// synthesizePractice builds a pulsed, vibrato-modulated tone: notes
// attack every 0.5s on a 440 Hz fundamental with 5.5 Hz vibrato.
func synthesizePractice(seconds float64, sampleRate int) []float64 {
	n := int(seconds * float64(sampleRate))
	samples := make([]float64, n)

	phase := 0.0
	for i := range samples {
		t := float64(i) / float64(sampleRate)
		freq := 440 * math.Pow(2, 0.3*math.Sin(2*math.Pi*5.5*t)/12)
		phase += 2 * math.Pi * freq / float64(sampleRate)

		beatPos := math.Mod(t, 0.5)
		env := 0.25 + 0.75*math.Exp(-6*beatPos)

		samples[i] = env * math.Sin(phase)
	}
	return samples
}

func TestDetectPitchSine(t *testing.T) {
	frame := make([]float64, 800)
	for i := range frame {
		frame[i] = math.Sin(2 * math.Pi * 440 * float64(i) / testSampleRate)
	}

	freq, conf := detectPitch(frame, testSampleRate)
	assert.InDelta(t, 440, freq, 5)
	assert.Greater(t, conf, 0.8)
}

func TestDetectPitchSilence(t *testing.T) {
	frame := make([]float64, 800)
	freq, conf := detectPitch(frame, testSampleRate)
	assert.Equal(t, 0.0, freq)
	assert.Equal(t, 0.0, conf)
}

func TestNoteName(t *testing.T) {
	assert.Equal(t, "A4", NoteName(440))
	assert.Equal(t, "C4", NoteName(261.63))
	assert.Equal(t, "E2", NoteName(82.41))
	assert.Equal(t, "", NoteName(0))
}

func TestFrameLoudness(t *testing.T) {
	sine := make([]float64, 1000)
	for i := range sine {
		sine[i] = math.Sin(2 * math.Pi * 100 * float64(i) / testSampleRate)
	}
	// Full-scale sine has -3.01 dBFS RMS.
	assert.InDelta(t, -3.01, frameLoudnessDB(sine), 0.2)

	assert.Equal(t, silenceFloorDB, frameLoudnessDB(make([]float64, 1000)))
}

func TestEstimateTempoSteadyBeat(t *testing.T) {
	var onsets []Onset
	for i := 0; i < 40; i++ {
		onsets = append(onsets, Onset{TimeSec: float64(i) * 0.5, Strength: 1})
	}

	tempo := estimateTempo(onsets)
	assert.InDelta(t, 120, tempo.BPM, 1)
	assert.InDelta(t, 1.0, tempo.Stability, 0.01)
	assert.Greater(t, tempo.Confidence, 0.9)
}

func TestEstimateTempoFoldsIntoPlausibleRange(t *testing.T) {
	var onsets []Onset
	for i := 0; i < 10; i++ {
		onsets = append(onsets, Onset{TimeSec: float64(i) * 2.5})
	}

	tempo := estimateTempo(onsets)
	assert.GreaterOrEqual(t, tempo.BPM, tempoMinBPM)
	assert.LessOrEqual(t, tempo.BPM, tempoMaxBPM)
}

func TestEstimateTempoTooFewOnsets(t *testing.T) {
	tempo := estimateTempo([]Onset{{TimeSec: 1}})
	assert.Equal(t, 0.0, tempo.BPM)
	assert.LessOrEqual(t, tempo.Confidence, 0.1)
}

func TestDetectOnsetsClickTrain(t *testing.T) {
	// 10 seconds of silence with 40ms bursts every half second.
	n := 10 * testSampleRate
	samples := make([]float64, n)
	for beat := 0; beat < 20; beat++ {
		start := beat * testSampleRate / 2
		for i := 0; i < testSampleRate*4/100; i++ {
			samples[start+i] = 0.8 * math.Sin(2*math.Pi*200*float64(i)/testSampleRate)
		}
	}

	onsets := detectOnsets(samples, testSampleRate)
	require.NotEmpty(t, onsets)
	assert.InDelta(t, 20, len(onsets), 3)

	// Gaps line up on the half-second beat grid.
	for i := 1; i < len(onsets); i++ {
		gap := onsets[i].TimeSec - onsets[i-1].TimeSec
		offGrid := math.Mod(gap, 0.5)
		if offGrid > 0.25 {
			offGrid = 0.5 - offGrid
		}
		assert.Less(t, offGrid, 0.1)
	}
}

func TestEstimateVibrato(t *testing.T) {
	// 2 seconds of voiced track at 25ms hop with 5.5 Hz, 0.3 semitone
	// modulation.
	hop := 0.025
	var track []pitchFrame
	for i := 0; i < 80; i++ {
		t := float64(i) * hop
		track = append(track, pitchFrame{
			timeSec:    t,
			freq:       440 * math.Pow(2, 0.3*math.Sin(2*math.Pi*5.5*t)/12),
			confidence: 0.9,
			db:         -12,
		})
	}

	v := estimateVibrato(track, hop)
	require.True(t, v.Detected)
	assert.InDelta(t, 5.5, v.RateHz, 1.5)
	assert.InDelta(t, 0.3, v.DepthSemitone, 0.2)
}

func TestEstimateVibratoTooCoarseTrack(t *testing.T) {
	// A 250ms hop cannot resolve vibrato-rate modulation.
	v := estimateVibrato([]pitchFrame{{freq: 440, confidence: 0.9}}, 0.25)
	assert.False(t, v.Detected)
}

func TestAnalyzePracticeRecording(t *testing.T) {
	path := writeWAV(t, synthesizePractice(10, testSampleRate), testSampleRate)

	a := NewAnalyzer(250)
	samples, result, err := a.Analyze(context.Background(), path, "job-1", "session-1")
	require.NoError(t, err)
	require.NotNil(t, result)

	// Plausible musical tempo.
	assert.GreaterOrEqual(t, result.TempoBPM, 30.0)
	assert.LessOrEqual(t, result.TempoBPM, 300.0)

	// Pitch range in Hz and note-name form.
	assert.Greater(t, result.PitchMinHz, 0.0)
	assert.GreaterOrEqual(t, result.PitchMaxHz, result.PitchMinHz)
	assert.NotEmpty(t, result.PitchMinNote)
	assert.NotEmpty(t, result.PitchMaxNote)

	// Pulsed envelope gives a usable dynamic range.
	assert.Greater(t, result.DynamicRangeDB, 0.0)

	// Aggregate scores in [0, 100].
	for _, score := range []float64{
		result.OverallConsistency, result.TechnicalProficiency, result.MusicalExpression,
		result.TempoScore, result.PitchScore, result.DynamicsScore,
	} {
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 100.0)
	}

	assert.Greater(t, result.OnsetCount, 0)

	// One sample per frame per frame-wise metric type.
	counts := map[model.MetricType]int{}
	for _, s := range samples {
		counts[s.MetricType]++
		assert.Equal(t, "session-1", s.SessionID)
	}
	assert.Equal(t, counts[model.MetricPitch], counts[model.MetricDynamics])
	assert.Equal(t, counts[model.MetricPitch], counts[model.MetricTempo])
	assert.Equal(t, counts[model.MetricPitch], counts[model.MetricVibrato])
	assert.Greater(t, counts[model.MetricPitch], 30)
	assert.Equal(t, result.OnsetCount, counts[model.MetricOnset])
}

func TestAnalyzeSilentRecording(t *testing.T) {
	path := writeWAV(t, make([]float64, 5*testSampleRate), testSampleRate)

	a := NewAnalyzer(250)
	samples, result, err := a.Analyze(context.Background(), path, "job-2", "session-2")
	require.NoError(t, err)
	require.NotNil(t, result)

	// Degraded, not absent: scores still present and bounded.
	assert.GreaterOrEqual(t, result.OverallConsistency, 0.0)
	assert.LessOrEqual(t, result.OverallConsistency, 100.0)
	assert.Equal(t, 0.0, result.DynamicRangeDB)
	assert.Equal(t, "", result.PitchMinNote)

	// All pitch samples carry low confidence.
	for _, s := range samples {
		if s.MetricType == model.MetricPitch {
			assert.LessOrEqual(t, s.Confidence, 0.1)
		}
	}
}

func TestAnalyzeUnreadableAudio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-audio.wav")
	require.NoError(t, os.WriteFile(path, []byte("not a wav file"), 0o644))

	a := NewAnalyzer(250)
	_, _, err := a.Analyze(context.Background(), path, "job-3", "session-3")
	require.Error(t, err)

	var se *model.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, model.ErrorPermanent, se.Class)
	assert.Equal(t, model.StageAnalyzing, se.Stage)
}

func TestAnalyzeCanceled(t *testing.T) {
	path := writeWAV(t, synthesizePractice(10, testSampleRate), testSampleRate)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAnalyzer(250)
	_, _, err := a.Analyze(ctx, path, "job-4", "session-4")
	require.Error(t, err)

	// Cancellation aborts the analysis with a retryable error rather
	// than hanging or failing the job permanently.
	var se *model.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, model.ErrorTransient, se.Class)
	assert.Equal(t, model.StageAnalyzing, se.Stage)
	assert.ErrorIs(t, err, context.Canceled)
}

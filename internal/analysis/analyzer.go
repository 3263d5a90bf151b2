// Package analysis runs signal analysis over an extracted audio track
// and produces per-frame metric samples plus session-level aggregate
// scores.
package analysis

import (
	"context"
	"math"
	"time"

	"github.com/practicetrack/api/internal/model"
)

const (
	// fineHopMS is the internal pitch-track hop. It has to be fast
	// enough to resolve vibrato modulation; emitted samples are
	// decimated down to the configured interval.
	fineHopMS = 25

	pitchWindowSize = 4096
)

type pitchFrame struct {
	timeSec    float64
	freq       float64
	confidence float64
	db         float64
}

// Analyzer extracts musical performance metrics from audio.
type Analyzer struct {
	sampleIntervalMS int
}

// NewAnalyzer creates an analyzer emitting one sample per metric type
// every sampleIntervalMS milliseconds.
func NewAnalyzer(sampleIntervalMS int) *Analyzer {
	if sampleIntervalMS < fineHopMS {
		sampleIntervalMS = fineHopMS
	}
	return &Analyzer{sampleIntervalMS: sampleIntervalMS}
}

// Analyze decodes the audio extract at path and returns the metric
// samples and the aggregate result for the job. Silent or non-musical
// audio yields low-confidence samples and degraded scores, never an
// error; only unreadable audio fails, and it fails permanently.
// Cancellation of ctx aborts the analysis with a retryable error.
func (a *Analyzer) Analyze(ctx context.Context, path, jobID, sessionID string) ([]model.MetricSample, *model.AnalysisResult, error) {
	samples, sampleRate, err := decodeWAV(path)
	if err != nil {
		return nil, nil, err
	}

	track, err := a.pitchTrack(ctx, samples, sampleRate)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, model.NewTransientError(model.StageAnalyzing, "analysis interrupted", err)
	}
	onsets := detectOnsets(samples, sampleRate)
	tempo := estimateTempo(onsets)
	vibrato := estimateVibrato(track, float64(fineHopMS)/1000)

	stride := a.sampleIntervalMS / fineHopMS

	var out []model.MetricSample
	var voicedPitch []float64
	var audibleDB []float64

	minPitch, maxPitch := math.Inf(1), math.Inf(-1)
	minDB, maxDB := math.Inf(1), math.Inf(-1)

	for i := 0; i < len(track); i += stride {
		f := track[i]
		ts := int64(math.Round(f.timeSec * 1000))

		pitchConf := f.confidence
		if !isAudible(f.db) {
			pitchConf = math.Min(pitchConf, 0.1)
		}
		out = append(out,
			model.MetricSample{
				SessionID: sessionID, Timestamp: ts,
				MetricType: model.MetricPitch,
				Value:      f.freq, Confidence: pitchConf,
			},
			model.MetricSample{
				SessionID: sessionID, Timestamp: ts,
				MetricType: model.MetricDynamics,
				Value:      f.db, Confidence: dynamicsConfidence(f.db),
			},
			model.MetricSample{
				SessionID: sessionID, Timestamp: ts,
				MetricType: model.MetricTempo,
				Value:      tempo.BPM, Confidence: tempo.Confidence,
			},
			model.MetricSample{
				SessionID: sessionID, Timestamp: ts,
				MetricType: model.MetricVibrato,
				Value:      vibrato.DepthSemitone, Confidence: vibratoConfidence(vibrato),
			},
		)
	}

	for _, f := range track {
		if isAudible(f.db) {
			audibleDB = append(audibleDB, f.db)
			if f.db < minDB {
				minDB = f.db
			}
			if f.db > maxDB {
				maxDB = f.db
			}
		}
		if f.freq > 0 && f.confidence > 0.5 && isAudible(f.db) {
			voicedPitch = append(voicedPitch, f.freq)
			if f.freq < minPitch {
				minPitch = f.freq
			}
			if f.freq > maxPitch {
				maxPitch = f.freq
			}
		}
	}

	for _, onset := range onsets {
		out = append(out, model.MetricSample{
			SessionID:  sessionID,
			Timestamp:  int64(math.Round(onset.TimeSec * 1000)),
			MetricType: model.MetricOnset,
			Value:      1,
			Confidence: onset.Strength,
		})
	}

	var dynamicRange float64
	if len(audibleDB) > 0 {
		dynamicRange = maxDB - minDB
	}
	if math.IsInf(minPitch, 1) {
		minPitch, maxPitch = 0, 0
	}

	scores := combineScores(tempo, voicedPitch, audibleDB, vibrato, dynamicRange)

	result := &model.AnalysisResult{
		JobID:     jobID,
		SessionID: sessionID,

		TempoBPM:       tempo.BPM,
		TempoScore:     scores.tempoScore,
		PitchScore:     scores.pitchScore,
		DynamicsScore:  scores.dynamicsScore,
		PitchMinHz:     minPitch,
		PitchMaxHz:     maxPitch,
		PitchMinNote:   NoteName(minPitch),
		PitchMaxNote:   NoteName(maxPitch),
		DynamicRangeDB: dynamicRange,
		VibratoRateHz:  vibrato.RateHz,
		VibratoDepth:   vibrato.DepthSemitone,
		OnsetCount:     len(onsets),

		OverallConsistency:   scores.overallConsistency,
		TechnicalProficiency: scores.technicalProficiency,
		MusicalExpression:    scores.musicalExpression,

		AnalyzedAt: time.Now().UTC(),
	}

	return out, result, nil
}

// pitchTrack computes the fine-grained pitch and loudness track. The
// per-frame autocorrelation dominates analysis cost, so this is where
// cancellation is checked.
func (a *Analyzer) pitchTrack(ctx context.Context, samples []float64, sampleRate int) ([]pitchFrame, error) {
	hop := sampleRate * fineHopMS / 1000
	if hop < 1 {
		hop = 1
	}
	// Window of ~100ms, long enough for the lowest tracked pitch but
	// short enough to resolve vibrato modulation.
	win := sampleRate / 10
	if win > pitchWindowSize {
		win = pitchWindowSize
	}
	if win > len(samples) {
		win = len(samples)
	}

	var track []pitchFrame
	for start := 0; start+win <= len(samples); start += hop {
		if err := ctx.Err(); err != nil {
			return nil, model.NewTransientError(model.StageAnalyzing, "analysis interrupted", err)
		}
		frame := samples[start : start+win]
		db := frameLoudnessDB(frame)

		var freq, conf float64
		if isAudible(db) {
			freq, conf = detectPitch(frame, sampleRate)
			if freq < pitchMinHz || freq > pitchMaxHz {
				freq, conf = 0, 0
			}
		}

		track = append(track, pitchFrame{
			timeSec:    float64(start) / float64(sampleRate),
			freq:       freq,
			confidence: conf,
			db:         db,
		})
	}

	return track, nil
}

func dynamicsConfidence(db float64) float64 {
	if isAudible(db) {
		return 0.95
	}
	return 0.2
}

func vibratoConfidence(v VibratoEstimate) float64 {
	if v.Detected {
		return 0.7
	}
	return 0.2
}

package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicetrack/api/internal/config"
	"github.com/practicetrack/api/internal/database"
	"github.com/practicetrack/api/internal/model"
)

func setupWriter(t *testing.T) *Writer {
	t.Helper()

	db, err := database.Initialize(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   ":memory:",
	}, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewWriter(db)
}

func makeSamples(sessionID string, metricType model.MetricType, n int) []model.MetricSample {
	samples := make([]model.MetricSample, n)
	for i := range samples {
		samples[i] = model.MetricSample{
			SessionID:  sessionID,
			Timestamp:  int64(i * 250),
			MetricType: metricType,
			Value:      float64(100 + i),
			Confidence: 0.9,
		}
	}
	return samples
}

func TestPersistSamplesNoDrops(t *testing.T) {
	w := setupWriter(t)
	ctx := context.Background()
	sessionID := uuid.New().String()

	samples := makeSamples(sessionID, model.MetricPitch, 720)
	require.NoError(t, w.PersistSamples(ctx, samples))

	var n int64
	require.NoError(t, w.db.Model(&model.MetricSample{}).
		Where("session_id = ?", sessionID).Count(&n).Error)
	assert.EqualValues(t, 720, n)
}

func TestPersistSamplesIdempotent(t *testing.T) {
	w := setupWriter(t)
	ctx := context.Background()
	sessionID := uuid.New().String()

	samples := makeSamples(sessionID, model.MetricTempo, 100)
	require.NoError(t, w.PersistSamples(ctx, samples))

	// Re-delivery of the same job rewrites identical keys with
	// different values; the first write must win and no duplicates may
	// appear.
	replay := makeSamples(sessionID, model.MetricTempo, 100)
	for i := range replay {
		replay[i].ID = 0
		replay[i].Value = -1
	}
	require.NoError(t, w.PersistSamples(ctx, replay))

	var n int64
	require.NoError(t, w.db.Model(&model.MetricSample{}).
		Where("session_id = ?", sessionID).Count(&n).Error)
	assert.EqualValues(t, 100, n)

	var first model.MetricSample
	require.NoError(t, w.db.
		Where("session_id = ? AND timestamp = 0 AND metric_type = ?", sessionID, model.MetricTempo).
		First(&first).Error)
	assert.Equal(t, float64(100), first.Value)
}

func TestPersistSummaryOncePerJob(t *testing.T) {
	w := setupWriter(t)
	ctx := context.Background()
	jobID := uuid.New().String()
	sessionID := uuid.New().String()

	result := &model.AnalysisResult{
		JobID:                jobID,
		SessionID:            sessionID,
		TempoBPM:             96,
		OverallConsistency:   81.5,
		TechnicalProficiency: 77.2,
		MusicalExpression:    69.8,
		AnalyzedAt:           time.Now().UTC(),
	}
	require.NoError(t, w.PersistSummary(ctx, result))

	dup := *result
	dup.ID = 0
	dup.TempoBPM = 200
	require.NoError(t, w.PersistSummary(ctx, &dup))

	got, err := w.JobAnalysis(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, float64(96), got.TempoBPM)
}

func TestSessionAnalysisCounts(t *testing.T) {
	w := setupWriter(t)
	ctx := context.Background()
	sessionID := uuid.New().String()

	require.NoError(t, w.PersistSamples(ctx, makeSamples(sessionID, model.MetricPitch, 40)))
	require.NoError(t, w.PersistSamples(ctx, makeSamples(sessionID, model.MetricDynamics, 40)))
	require.NoError(t, w.PersistSummary(ctx, &model.AnalysisResult{
		JobID:      uuid.New().String(),
		SessionID:  sessionID,
		AnalyzedAt: time.Now().UTC(),
	}))

	result, counts, err := w.SessionAnalysis(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, sessionID, result.SessionID)
	assert.Equal(t, 40, counts[model.MetricPitch])
	assert.Equal(t, 40, counts[model.MetricDynamics])
}

func TestUpsertAssetsOverwrites(t *testing.T) {
	w := setupWriter(t)
	ctx := context.Background()
	jobID := uuid.New().String()

	assets := []model.MediaAsset{
		{JobID: jobID, Kind: model.ArtifactRenditionHigh, Position: 0, StorageKey: "sessions/s/high.mp4", SizeBytes: 100, ContentType: "video/mp4"},
		{JobID: jobID, Kind: model.ArtifactThumbnail, Position: 2, StorageKey: "sessions/s/thumb_2.jpg", SizeBytes: 10, ContentType: "image/jpeg"},
	}
	require.NoError(t, w.UpsertAssets(ctx, assets))

	// Reprocessing writes the same keys with a fresh size.
	rerun := []model.MediaAsset{
		{JobID: jobID, Kind: model.ArtifactRenditionHigh, Position: 0, StorageKey: "sessions/s/high.mp4", SizeBytes: 222, ContentType: "video/mp4"},
	}
	require.NoError(t, w.UpsertAssets(ctx, rerun))

	got, err := w.JobAssets(ctx, jobID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	for _, a := range got {
		if a.Kind == model.ArtifactRenditionHigh {
			assert.EqualValues(t, 222, a.SizeBytes)
		}
	}
}

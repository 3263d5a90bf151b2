// Package metrics persists analysis output into the relational store.
// Sample writes are duplicate safe: re-running a job must never
// produce conflicting rows or partial-batch failures.
package metrics

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/practicetrack/api/internal/database"
	"github.com/practicetrack/api/internal/model"
)

const sampleBatchSize = 500

// Store persists analysis samples, summaries and media asset rows.
type Store interface {
	PersistSamples(ctx context.Context, samples []model.MetricSample) error
	PersistSummary(ctx context.Context, result *model.AnalysisResult) error
	UpsertAssets(ctx context.Context, assets []model.MediaAsset) error
	SessionAnalysis(ctx context.Context, sessionID string) (*model.AnalysisResult, map[model.MetricType]int, error)
	JobAnalysis(ctx context.Context, jobID string) (*model.AnalysisResult, error)
	JobAssets(ctx context.Context, jobID string) ([]model.MediaAsset, error)
}

// Writer implements Store on GORM.
type Writer struct {
	db *database.DB
}

// NewWriter creates a new metrics writer
func NewWriter(db *database.DB) *Writer {
	return &Writer{db: db}
}

// PersistSamples bulk-writes metric samples. Rows whose
// (timestamp, session id, metric type) key already exists are ignored,
// keeping the first-written value, so at-least-once re-delivery of the
// same job cannot corrupt or duplicate the series.
func (w *Writer) PersistSamples(ctx context.Context, samples []model.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}

	err := w.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(samples, sampleBatchSize).Error
	if err != nil {
		return fmt.Errorf("failed to bulk-write metric samples: %w", err)
	}
	return nil
}

// PersistSummary writes the aggregate analysis record for a job.
// Conflict on job id keeps the first write, matching the sample
// semantics.
func (w *Writer) PersistSummary(ctx context.Context, result *model.AnalysisResult) error {
	err := w.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(result).Error
	if err != nil {
		return fmt.Errorf("failed to write analysis result: %w", err)
	}
	return nil
}

// UpsertAssets records derived artifacts. Reprocessing overwrites the
// row for the same (job id, kind, position) instead of duplicating it.
func (w *Writer) UpsertAssets(ctx context.Context, assets []model.MediaAsset) error {
	if len(assets) == 0 {
		return nil
	}

	err := w.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}, {Name: "kind"}, {Name: "position"}},
			DoUpdates: clause.AssignmentColumns([]string{"storage_key", "size_bytes", "content_type", "session_id"}),
		}).
		Create(&assets).Error
	if err != nil {
		return fmt.Errorf("failed to upsert media assets: %w", err)
	}
	return nil
}

// SessionAnalysis returns the latest analysis result for a session and
// the persisted sample count per metric type.
func (w *Writer) SessionAnalysis(ctx context.Context, sessionID string) (*model.AnalysisResult, map[model.MetricType]int, error) {
	var result model.AnalysisResult
	err := w.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("analyzed_at DESC").
		First(&result).Error
	if err != nil {
		return nil, nil, fmt.Errorf("analysis result not found for session %s: %w", sessionID, err)
	}

	type countRow struct {
		MetricType model.MetricType
		N          int
	}
	var rows []countRow
	err = w.db.WithContext(ctx).
		Model(&model.MetricSample{}).
		Select("metric_type, COUNT(*) as n").
		Where("session_id = ?", sessionID).
		Group("metric_type").
		Scan(&rows).Error
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count metric samples: %w", err)
	}

	counts := make(map[model.MetricType]int, len(rows))
	for _, r := range rows {
		counts[r.MetricType] = r.N
	}

	return &result, counts, nil
}

// JobAnalysis returns the analysis result for a job, if present.
func (w *Writer) JobAnalysis(ctx context.Context, jobID string) (*model.AnalysisResult, error) {
	var result model.AnalysisResult
	err := w.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		First(&result).Error
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// JobAssets returns the recorded artifacts for a job.
func (w *Writer) JobAssets(ctx context.Context, jobID string) ([]model.MediaAsset, error) {
	var assets []model.MediaAsset
	err := w.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("kind, position").
		Find(&assets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load media assets: %w", err)
	}
	return assets, nil
}

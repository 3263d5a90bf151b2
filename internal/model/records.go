package model

import "time"

// MediaAsset is one derived binary artifact row. Keyed by (job id,
// artifact kind, position) so reprocessing the same job overwrites
// instead of duplicating. Position is only meaningful for thumbnails.
type MediaAsset struct {
	ID          uint         `gorm:"primarykey" json:"id"`
	JobID       string       `gorm:"size:64;uniqueIndex:idx_media_assets_job_kind" json:"jobId"`
	Kind        ArtifactKind `gorm:"size:32;uniqueIndex:idx_media_assets_job_kind" json:"kind"`
	Position    int          `gorm:"uniqueIndex:idx_media_assets_job_kind" json:"position"`
	SessionID   string       `gorm:"size:128;index" json:"sessionId"`
	StorageKey  string       `gorm:"size:512" json:"storageKey"`
	SizeBytes   int64        `json:"sizeBytes"`
	ContentType string       `gorm:"size:64" json:"contentType"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// MetricSample is one analysis data point. The triple (timestamp,
// session id, metric type) is unique; the bulk write path relies on
// ignore-on-conflict against this index.
type MetricSample struct {
	ID         uint       `gorm:"primarykey" json:"id"`
	SessionID  string     `gorm:"size:64;uniqueIndex:idx_metric_samples_key" json:"sessionId"`
	Timestamp  int64      `gorm:"uniqueIndex:idx_metric_samples_key" json:"timestamp"` // milliseconds from session start
	MetricType MetricType `gorm:"size:16;uniqueIndex:idx_metric_samples_key" json:"metricType"`
	Value      float64    `json:"value"`
	Confidence float64    `json:"confidence"`
}

// AnalysisResult is the per-job aggregate summary of all metric types.
// Created exactly once per successfully analyzed job.
type AnalysisResult struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	JobID     string `gorm:"size:64;uniqueIndex" json:"jobId"`
	SessionID string `gorm:"size:64;index" json:"sessionId"`

	TempoBPM       float64 `json:"tempoBpm"`
	TempoScore     float64 `json:"tempoScore"`
	PitchScore     float64 `json:"pitchScore"`
	DynamicsScore  float64 `json:"dynamicsScore"`
	PitchMinHz     float64 `json:"pitchMinHz"`
	PitchMaxHz     float64 `json:"pitchMaxHz"`
	PitchMinNote   string  `gorm:"size:8" json:"pitchMinNote"`
	PitchMaxNote   string  `gorm:"size:8" json:"pitchMaxNote"`
	DynamicRangeDB float64 `json:"dynamicRangeDb"`
	VibratoRateHz  float64 `json:"vibratoRateHz"`
	VibratoDepth   float64 `json:"vibratoDepth"`
	OnsetCount     int     `json:"onsetCount"`

	OverallConsistency   float64 `json:"overallConsistency"`
	TechnicalProficiency float64 `json:"technicalProficiency"`
	MusicalExpression    float64 `json:"musicalExpression"`

	AnalyzedAt time.Time `json:"analyzedAt"`
}

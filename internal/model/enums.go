package model

// Job status
type JobStatus string

const (
	JobStatusQueued           JobStatus = "queued"
	JobStatusProcessing       JobStatus = "processing"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusCompletedPartial JobStatus = "completed_partial"
	JobStatusFailed           JobStatus = "failed"
)

// Terminal reports whether a job in this status will never change again.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusCompletedPartial || s == JobStatusFailed
}

// Pipeline stages, in execution order
type JobStage string

const (
	StageQueued          JobStage = "queued"
	StageReconciling     JobStage = "reconciling"
	StageTranscoding     JobStage = "transcoding"
	StageExtractingAudio JobStage = "extracting_audio"
	StageAnalyzing       JobStage = "analyzing"
	StagePersisting      JobStage = "persisting"
)

// Artifact kinds produced by the transcoding stage
type ArtifactKind string

const (
	ArtifactRenditionLow    ArtifactKind = "rendition_low"
	ArtifactRenditionMedium ArtifactKind = "rendition_medium"
	ArtifactRenditionHigh   ArtifactKind = "rendition_high"
	ArtifactThumbnail       ArtifactKind = "thumbnail"
	ArtifactPreview         ArtifactKind = "preview"
	ArtifactAudioExtract    ArtifactKind = "audio_extract"
)

// Rendition quality tiers
type RenditionQuality string

const (
	QualityLow    RenditionQuality = "low"
	QualityMedium RenditionQuality = "medium"
	QualityHigh   RenditionQuality = "high"
)

// Metric types emitted by the audio analyzer
type MetricType string

const (
	MetricTempo    MetricType = "tempo"
	MetricPitch    MetricType = "pitch"
	MetricDynamics MetricType = "dynamics"
	MetricVibrato  MetricType = "vibrato"
	MetricOnset    MetricType = "onset"
)

// ThumbnailCount is fixed regardless of asset duration.
const ThumbnailCount = 5

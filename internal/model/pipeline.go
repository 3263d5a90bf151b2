package model

import "time"

// SubmitJobRequest is consumed from the upload/session subsystem.
type SubmitJobRequest struct {
	SessionID   string    `json:"sessionId" validate:"required"`
	RawAssetKey string    `json:"rawAssetKey" validate:"required"`
	CallbackURL string    `json:"callbackUrl,omitempty" validate:"omitempty,url"`
	RequestedAt time.Time `json:"requestedAt"`
}

// SubmitJobResponse acknowledges an accepted job.
type SubmitJobResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// UploadRecordingResponse is returned after a raw recording upload.
type UploadRecordingResponse struct {
	JobID       string    `json:"jobId"`
	RawAssetKey string    `json:"rawAssetKey"`
	Status      JobStatus `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ArtifactURLs carries externally reachable, time-limited playback URLs.
type ArtifactURLs struct {
	LowURL        string   `json:"lowUrl,omitempty"`
	MediumURL     string   `json:"mediumUrl,omitempty"`
	HighURL       string   `json:"highUrl,omitempty"`
	ThumbnailURLs []string `json:"thumbnailUrls,omitempty"`
	PreviewURL    string   `json:"previewUrl,omitempty"`
	AudioURL      string   `json:"audioUrl,omitempty"`
}

// AnalysisSummary is the status-query view of an AnalysisResult.
type AnalysisSummary struct {
	TempoBPM             float64   `json:"tempoBpm"`
	TempoScore           float64   `json:"tempoScore"`
	PitchScore           float64   `json:"pitchScore"`
	DynamicsScore        float64   `json:"dynamicsScore"`
	PitchMinHz           float64   `json:"pitchMinHz"`
	PitchMaxHz           float64   `json:"pitchMaxHz"`
	PitchMinNote         string    `json:"pitchMinNote"`
	PitchMaxNote         string    `json:"pitchMaxNote"`
	DynamicRangeDB       float64   `json:"dynamicRangeDb"`
	VibratoRateHz        float64   `json:"vibratoRateHz"`
	VibratoDepth         float64   `json:"vibratoDepth"`
	OnsetCount           int       `json:"onsetCount"`
	OverallConsistency   float64   `json:"overallConsistency"`
	TechnicalProficiency float64   `json:"technicalProficiency"`
	MusicalExpression    float64   `json:"musicalExpression"`
	AnalyzedAt           time.Time `json:"analyzedAt"`
}

// JobStatusResponse is the status-query interface of the pipeline.
type JobStatusResponse struct {
	JobID            string                 `json:"jobId"`
	SessionID        string                 `json:"sessionId"`
	Stage            JobStage               `json:"stage"`
	Status           JobStatus              `json:"status"`
	Error            *string                `json:"error,omitempty"`
	MetricsDeferred  bool                   `json:"metricsDeferred"`
	SamplesPersisted bool                   `json:"samplesPersisted"`
	SummaryPersisted bool                   `json:"summaryPersisted"`
	FailedArtifacts  []string               `json:"failedArtifacts,omitempty"`
	Artifacts        *ArtifactURLs          `json:"artifacts,omitempty"`
	AnalysisSummary  *AnalysisSummary       `json:"analysisSummary,omitempty"`
	StageTimestamps  map[JobStage]time.Time `json:"stageTimestamps,omitempty"`
	CreatedAt        time.Time              `json:"createdAt"`
	StartedAt        *time.Time             `json:"startedAt,omitempty"`
	CompletedAt      *time.Time             `json:"completedAt,omitempty"`
	RetryCount       int                    `json:"retryCount"`
}

// SessionAnalysisResponse returns the persisted analysis for a session.
type SessionAnalysisResponse struct {
	SessionID    string             `json:"sessionId"`
	Result       *AnalysisResult    `json:"result,omitempty"`
	SampleCounts map[MetricType]int `json:"sampleCounts,omitempty"`
}

// StatusCallback is posted to the originating collaborator when a job
// reaches a terminal state.
type StatusCallback struct {
	JobID           string    `json:"jobId"`
	SessionID       string    `json:"sessionId"`
	Status          JobStatus `json:"status"`
	Error           *string   `json:"error,omitempty"`
	MetricsDeferred bool      `json:"metricsDeferred"`
	CompletedAt     time.Time `json:"completedAt"`
}

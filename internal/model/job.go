package model

import "time"

// Job represents one pipeline execution for one raw upload.
// Job records live in Redis next to the queue; only the pipeline
// worker mutates them after creation.
type Job struct {
	ID               string     `json:"id"`
	SessionID        string     `json:"sessionId"`
	RawAssetKey      string     `json:"rawAssetKey"`
	Stage            JobStage   `json:"stage"`
	Status           JobStatus  `json:"status"`
	Error            *string    `json:"error,omitempty"`
	MetricsDeferred  bool       `json:"metricsDeferred"`
	SamplesPersisted bool       `json:"samplesPersisted"`
	SummaryPersisted bool       `json:"summaryPersisted"`
	FailedArtifacts  []string   `json:"failedArtifacts,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	RetryCount       int        `json:"retryCount"`

	// StageTimestamps records when each stage was entered.
	StageTimestamps map[JobStage]time.Time `json:"stageTimestamps,omitempty"`
}

// EnterStage records a stage transition with its timestamp.
func (j *Job) EnterStage(stage JobStage, at time.Time) {
	if j.StageTimestamps == nil {
		j.StageTimestamps = make(map[JobStage]time.Time)
	}
	j.Stage = stage
	j.StageTimestamps[stage] = at
}

// PipelineJobPayload contains the data for a pipeline job
type PipelineJobPayload struct {
	SessionID   string    `json:"sessionId"`
	RawAssetKey string    `json:"rawAssetKey"`
	CallbackURL string    `json:"callbackUrl,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

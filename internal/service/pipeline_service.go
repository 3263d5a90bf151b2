package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/practicetrack/api/internal/client"
	"github.com/practicetrack/api/internal/identity"
	"github.com/practicetrack/api/internal/metrics"
	"github.com/practicetrack/api/internal/model"
)

const (
	TaskTypePipeline = "pipeline:process"

	jobRetention = 7 * 24 * time.Hour
)

// PipelineService manages pipeline job records and their queue entries.
// Job records are transient and queue-adjacent; durable rows live in
// the metrics store.
type PipelineService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
	storage     client.StorageClient
	metrics     metrics.Store
	maxRetries  int
	presignTTL  time.Duration
}

func NewPipelineService(redisClient *redis.Client, asynqClient *asynq.Client, storage client.StorageClient, metricsStore metrics.Store, maxRetries int, presignTTL time.Duration) *PipelineService {
	return &PipelineService{
		redis:       redisClient,
		asynqClient: asynqClient,
		storage:     storage,
		metrics:     metricsStore,
		maxRetries:  maxRetries,
		presignTTL:  presignTTL,
	}
}

// SubmitJob creates a job record and enqueues it for processing.
func (s *PipelineService) SubmitJob(ctx context.Context, req *model.SubmitJobRequest) (*model.SubmitJobResponse, error) {
	jobID := uuid.New().String()
	now := time.Now()

	job := &model.Job{
		ID:          jobID,
		SessionID:   req.SessionID,
		RawAssetKey: req.RawAssetKey,
		Status:      model.JobStatusQueued,
		CreatedAt:   now,
	}
	job.EnterStage(model.StageQueued, now)

	if err := s.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	// Track the latest job per session so status can be queried by
	// either identifier.
	s.redis.Set(ctx, sessionJobKey(req.SessionID), jobID, jobRetention)

	payload := &model.PipelineJobPayload{
		SessionID:   req.SessionID,
		RawAssetKey: req.RawAssetKey,
		CallbackURL: req.CallbackURL,
		RequestedAt: req.RequestedAt,
	}
	task, err := newPipelineTask(jobID, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("pipeline"),
		asynq.MaxRetry(s.maxRetries),
		asynq.Retention(jobRetention),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.SubmitJobResponse{
		JobID:     jobID,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}, nil
}

// UploadRecording stores a raw recording under the session prefix and
// submits a pipeline job for it.
func (s *PipelineService) UploadRecording(ctx context.Context, sessionID string, file io.Reader, contentType, ext string) (*model.UploadRecordingResponse, error) {
	sid := identity.Classify(sessionID)
	rawKey := fmt.Sprintf("%s/raw/%s%s", sid.StoragePrefix(), uuid.New().String(), ext)

	if err := s.storage.Upload(ctx, rawKey, file, contentType); err != nil {
		return nil, fmt.Errorf("failed to store recording: %w", err)
	}

	submitted, err := s.SubmitJob(ctx, &model.SubmitJobRequest{
		SessionID:   sessionID,
		RawAssetKey: rawKey,
		RequestedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}

	return &model.UploadRecordingResponse{
		JobID:       submitted.JobID,
		RawAssetKey: rawKey,
		Status:      submitted.Status,
		CreatedAt:   submitted.CreatedAt,
	}, nil
}

// GetStatus assembles the status-query view of a job, including
// presigned artifact URLs and the analysis summary when available.
func (s *PipelineService) GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	resp := &model.JobStatusResponse{
		JobID:            job.ID,
		SessionID:        job.SessionID,
		Stage:            job.Stage,
		Status:           job.Status,
		Error:            job.Error,
		MetricsDeferred:  job.MetricsDeferred,
		SamplesPersisted: job.SamplesPersisted,
		SummaryPersisted: job.SummaryPersisted,
		FailedArtifacts:  job.FailedArtifacts,
		StageTimestamps:  job.StageTimestamps,
		CreatedAt:        job.CreatedAt,
		StartedAt:        job.StartedAt,
		CompletedAt:      job.CompletedAt,
		RetryCount:       job.RetryCount,
	}

	// A presign or asset-query failure must not masquerade as a
	// completed job with no artifacts.
	artifacts, err := s.artifactURLs(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact URLs for job %s: %w", job.ID, err)
	}
	if artifacts != nil {
		resp.Artifacts = artifacts
	}

	if result, err := s.metrics.JobAnalysis(ctx, job.ID); err == nil && result != nil {
		resp.AnalysisSummary = toSummary(result)
	}

	return resp, nil
}

// ResolveSessionJob returns the most recent job id submitted for a
// session identifier.
func (s *PipelineService) ResolveSessionJob(ctx context.Context, sessionID string) (string, error) {
	jobID, err := s.redis.Get(ctx, sessionJobKey(sessionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", fmt.Errorf("no job found for session %s", sessionID)
		}
		return "", err
	}
	return jobID, nil
}

// SessionAnalysis returns the persisted analysis for a session from
// the durable store.
func (s *PipelineService) SessionAnalysis(ctx context.Context, sessionID string) (*model.SessionAnalysisResponse, error) {
	result, counts, err := s.metrics.SessionAnalysis(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &model.SessionAnalysisResponse{
		SessionID:    sessionID,
		Result:       result,
		SampleCounts: counts,
	}, nil
}

// FinishJob persists a terminal status for the job.
func (s *PipelineService) FinishJob(ctx context.Context, job *model.Job, status model.JobStatus, errMsg *string) error {
	job.Status = status
	job.Error = errMsg
	now := time.Now()
	job.CompletedAt = &now
	return s.SaveJob(ctx, job)
}

// RecordRetry bumps the retry counter after a transient failure.
func (s *PipelineService) RecordRetry(ctx context.Context, jobID string) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return
	}
	job.RetryCount++
	_ = s.SaveJob(ctx, job)
}

// artifactURLs presigns every recorded artifact of a job. URLs are
// externally reachable and time limited.
func (s *PipelineService) artifactURLs(ctx context.Context, jobID string) (*model.ArtifactURLs, error) {
	assets, err := s.metrics.JobAssets(ctx, jobID)
	if err != nil || len(assets) == 0 {
		return nil, err
	}

	urls := &model.ArtifactURLs{}
	thumbs := make([]string, model.ThumbnailCount)
	var haveThumbs bool

	for _, asset := range assets {
		signed, err := s.storage.GetSignedURL(ctx, asset.StorageKey, s.presignTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to presign %s: %w", asset.StorageKey, err)
		}

		switch asset.Kind {
		case model.ArtifactRenditionLow:
			urls.LowURL = signed
		case model.ArtifactRenditionMedium:
			urls.MediumURL = signed
		case model.ArtifactRenditionHigh:
			urls.HighURL = signed
		case model.ArtifactPreview:
			urls.PreviewURL = signed
		case model.ArtifactAudioExtract:
			urls.AudioURL = signed
		case model.ArtifactThumbnail:
			if asset.Position >= 0 && asset.Position < len(thumbs) {
				thumbs[asset.Position] = signed
				haveThumbs = true
			}
		}
	}
	if haveThumbs {
		urls.ThumbnailURLs = thumbs
	}

	return urls, nil
}

func toSummary(r *model.AnalysisResult) *model.AnalysisSummary {
	return &model.AnalysisSummary{
		TempoBPM:             r.TempoBPM,
		TempoScore:           r.TempoScore,
		PitchScore:           r.PitchScore,
		DynamicsScore:        r.DynamicsScore,
		PitchMinHz:           r.PitchMinHz,
		PitchMaxHz:           r.PitchMaxHz,
		PitchMinNote:         r.PitchMinNote,
		PitchMaxNote:         r.PitchMaxNote,
		DynamicRangeDB:       r.DynamicRangeDB,
		VibratoRateHz:        r.VibratoRateHz,
		VibratoDepth:         r.VibratoDepth,
		OnsetCount:           r.OnsetCount,
		OverallConsistency:   r.OverallConsistency,
		TechnicalProficiency: r.TechnicalProficiency,
		MusicalExpression:    r.MusicalExpression,
		AnalyzedAt:           r.AnalyzedAt,
	}
}

// Job record persistence

func (s *PipelineService) SaveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKey(job.ID), data, jobRetention).Err()
}

func (s *PipelineService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("job not found")
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

func sessionJobKey(sessionID string) string {
	return fmt.Sprintf("session:%s:latest-job", sessionID)
}

func newPipelineTask(jobID string, payload *model.PipelineJobPayload) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	taskPayload := map[string]interface{}{
		"jobId":   jobID,
		"payload": json.RawMessage(payloadBytes),
	}
	data, err := json.Marshal(taskPayload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePipeline, data), nil
}

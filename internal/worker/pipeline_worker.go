package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/practicetrack/api/internal/client"
	"github.com/practicetrack/api/internal/identity"
	"github.com/practicetrack/api/internal/metrics"
	"github.com/practicetrack/api/internal/model"
	"github.com/practicetrack/api/internal/transcode"
	"github.com/practicetrack/api/internal/websocket"
)

// JobStore loads and persists the job records the worker mutates.
type JobStore interface {
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	SaveJob(ctx context.Context, job *model.Job) error
	FinishJob(ctx context.Context, job *model.Job, status model.JobStatus, errMsg *string) error
	RecordRetry(ctx context.Context, jobID string)
	GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error)
}

// Analyzer produces metric samples and the aggregate result from an
// extracted audio file.
type Analyzer interface {
	Analyze(ctx context.Context, path, jobID, sessionID string) ([]model.MetricSample, *model.AnalysisResult, error)
}

// PipelineWorker executes the media pipeline for one job: reconcile
// the session identifier, transcode, extract audio, analyze, persist.
// Transient failures are retried by the queue with backoff; permanent
// failures terminate the job immediately. Every stage runs under its
// own deadline so a stalled engine or store cannot hang a worker slot.
type PipelineWorker struct {
	jobs         JobStore
	storage      client.StorageClient
	transcoder   transcode.Transcoder
	analyzer     Analyzer
	metrics      metrics.Store
	notifier     client.StatusNotifier
	hub          *websocket.Hub
	tempDir      string
	stageTimeout time.Duration
}

// NewPipelineWorker creates a new pipeline worker
func NewPipelineWorker(
	jobs JobStore,
	storage client.StorageClient,
	transcoder transcode.Transcoder,
	analyzer Analyzer,
	metricsStore metrics.Store,
	notifier client.StatusNotifier,
	hub *websocket.Hub,
	tempDir string,
	stageTimeout time.Duration,
) *PipelineWorker {
	return &PipelineWorker{
		jobs:         jobs,
		storage:      storage,
		transcoder:   transcoder,
		analyzer:     analyzer,
		metrics:      metricsStore,
		notifier:     notifier,
		hub:          hub,
		tempDir:      tempDir,
		stageTimeout: stageTimeout,
	}
}

// ProcessTask handles pipeline task processing
func (w *PipelineWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}

	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	jobID := taskPayload.JobID
	log.Printf("Starting pipeline job: %s", jobID)

	var payload model.PipelineJobPayload
	if err := json.Unmarshal(taskPayload.Payload, &payload); err != nil {
		w.failJob(ctx, jobID, &payload, "Invalid payload")
		return fmt.Errorf("failed to unmarshal pipeline payload: %v: %w", err, asynq.SkipRetry)
	}

	err := w.run(ctx, jobID, &payload)
	if err == nil {
		return nil
	}

	if model.IsTransient(err) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		if retried < maxRetry {
			w.jobs.RecordRetry(ctx, jobID)
			log.Printf("Pipeline job %s failed at stage %s (attempt %d/%d), will retry: %v",
				jobID, model.StageOf(err), retried+1, maxRetry, err)
			return err
		}
		// Retry budget exhausted; the transient failure becomes terminal.
		err = fmt.Errorf("retry limit reached: %w", err)
	}

	w.failJob(ctx, jobID, &payload, err.Error())
	return fmt.Errorf("pipeline job %s failed: %v: %w", jobID, err, asynq.SkipRetry)
}

// run drives the job through its stages. Every error it returns is
// classified; the caller decides retry versus terminal failure.
func (w *PipelineWorker) run(ctx context.Context, jobID string, payload *model.PipelineJobPayload) error {
	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		return model.NewTransientError(model.StageQueued, "failed to load job record", err)
	}
	if job.Status.Terminal() {
		log.Printf("Pipeline job %s already terminal (%s), skipping", jobID, job.Status)
		return nil
	}

	workDir, err := os.MkdirTemp(w.tempDir, "pipeline-*")
	if err != nil {
		return model.NewTransientError(model.StageQueued, "failed to create work directory", err)
	}
	defer os.RemoveAll(workDir)

	// Reconcile the session identifier once; downstream stages only
	// see the classified form.
	w.enterStage(ctx, job, model.StageReconciling)
	sid := identity.Classify(payload.SessionID)
	if !sid.Canonical() {
		log.Printf("Pipeline job %s: session %s is provisional, metrics will be deferred", jobID, sid)
	}

	// Transcoding: fan out renditions, thumbnails, preview and the
	// audio extract. Derived keys are namespaced by job id, so a second
	// job for the same session never replaces objects an earlier job's
	// asset rows still point at; a re-run of the same job overwrites
	// its own keys in place.
	w.enterStage(ctx, job, model.StageTranscoding)
	srcPath := filepath.Join(workDir, "source"+filepath.Ext(payload.RawAssetKey))
	keyPrefix := fmt.Sprintf("%s/media/%s", sid.StoragePrefix(), jobID)

	transcodeCtx, cancel := context.WithTimeout(ctx, w.stageTimeout)
	err = w.downloadTo(transcodeCtx, payload.RawAssetKey, srcPath, model.StageTranscoding)
	if err != nil {
		cancel()
		return err
	}
	result, err := w.transcoder.Transcode(transcodeCtx, srcPath, keyPrefix)
	cancel()
	if err != nil {
		return err
	}
	os.Remove(srcPath)

	if len(result.Failed) > 0 {
		job.FailedArtifacts = result.Failed
		log.Printf("Pipeline job %s: %d optional outputs failed: %s",
			jobID, len(result.Failed), strings.Join(result.Failed, ", "))
	}

	assets := make([]model.MediaAsset, 0, len(result.Artifacts))
	for _, a := range result.Artifacts {
		assets = append(assets, model.MediaAsset{
			JobID:       jobID,
			SessionID:   sid.String(),
			Kind:        a.Kind,
			Position:    a.Position,
			StorageKey:  a.StorageKey,
			SizeBytes:   a.SizeBytes,
			ContentType: a.ContentType,
		})
	}
	if err := w.metrics.UpsertAssets(ctx, assets); err != nil {
		return model.NewTransientError(model.StageTranscoding, "failed to record artifacts", err)
	}

	// Retrieve the audio extract for local analysis.
	w.enterStage(ctx, job, model.StageExtractingAudio)
	audioKey, ok := result.AudioExtract()
	if !ok {
		return model.NewPermanentError(model.StageExtractingAudio, "transcoding produced no audio extract", nil)
	}
	audioPath := filepath.Join(workDir, "audio.wav")
	extractCtx, cancel := context.WithTimeout(ctx, w.stageTimeout)
	err = w.downloadTo(extractCtx, audioKey, audioPath, model.StageExtractingAudio)
	cancel()
	if err != nil {
		return err
	}

	w.enterStage(ctx, job, model.StageAnalyzing)
	analyzeCtx, cancel := context.WithTimeout(ctx, w.stageTimeout)
	samples, summary, err := w.analyzer.Analyze(analyzeCtx, audioPath, jobID, sid.String())
	cancel()
	if err != nil {
		return err
	}

	w.enterStage(ctx, job, model.StagePersisting)
	persistPartial := false
	if !sid.Canonical() {
		// Metrics for a provisional session would be orphaned under a
		// placeholder id; defer them until the session is promoted and
		// the job re-submitted under its canonical id.
		job.MetricsDeferred = true
	} else {
		persistCtx, cancel := context.WithTimeout(ctx, w.stageTimeout)
		samplesErr := w.metrics.PersistSamples(persistCtx, samples)
		if samplesErr == nil {
			job.SamplesPersisted = true
		}
		summaryErr := w.metrics.PersistSummary(persistCtx, summary)
		if summaryErr == nil {
			job.SummaryPersisted = true
		}
		cancel()

		// Both halves failing means the store is down; retry the job.
		// One failing half leaves a partial result for operator-triggered
		// replay; the media artifacts are never rolled back.
		if samplesErr != nil && summaryErr != nil {
			return model.NewTransientError(model.StagePersisting, "failed to persist analysis output",
				errors.Join(samplesErr, summaryErr))
		}
		if samplesErr != nil {
			persistPartial = true
			log.Printf("Pipeline job %s: metric samples not persisted: %v", jobID, samplesErr)
		}
		if summaryErr != nil {
			persistPartial = true
			log.Printf("Pipeline job %s: analysis summary not persisted: %v", jobID, summaryErr)
		}
	}

	status := model.JobStatusCompleted
	if len(job.FailedArtifacts) > 0 || persistPartial {
		status = model.JobStatusCompletedPartial
	}
	if err := w.jobs.FinishJob(ctx, job, status, nil); err != nil {
		return model.NewTransientError(model.StagePersisting, "failed to save job record", err)
	}

	w.notify(ctx, job, payload.CallbackURL)
	if resp, err := w.jobs.GetStatus(ctx, jobID); err == nil {
		w.hub.BroadcastComplete(jobID, resp)
	}
	log.Printf("Pipeline job %s completed with status %s", jobID, status)
	return nil
}

// downloadTo streams an object into a local file. Store errors are
// retryable.
func (w *PipelineWorker) downloadTo(ctx context.Context, key, dst string, stage model.JobStage) error {
	body, err := w.storage.Download(ctx, key)
	if err != nil {
		return model.NewTransientError(stage, fmt.Sprintf("failed to download %s", key), err)
	}
	defer body.Close()

	f, err := os.Create(dst)
	if err != nil {
		return model.NewTransientError(stage, "failed to create local file", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return model.NewTransientError(stage, fmt.Sprintf("failed to read %s", key), err)
	}
	return nil
}

func (w *PipelineWorker) enterStage(ctx context.Context, job *model.Job, stage model.JobStage) {
	now := time.Now()
	job.EnterStage(stage, now)
	if job.Status == model.JobStatusQueued {
		job.Status = model.JobStatusProcessing
		job.StartedAt = &now
	}
	w.saveJob(ctx, job)
	w.hub.BroadcastProgress(job.ID, stage, job.Status)
}

func (w *PipelineWorker) saveJob(ctx context.Context, job *model.Job) {
	if err := w.jobs.SaveJob(ctx, job); err != nil {
		log.Printf("Failed to save job %s: %v", job.ID, err)
	}
}

func (w *PipelineWorker) failJob(ctx context.Context, jobID string, payload *model.PipelineJobPayload, errMsg string) {
	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		log.Printf("Failed to load job %s for failure: %v", jobID, err)
		return
	}
	if err := w.jobs.FinishJob(ctx, job, model.JobStatusFailed, &errMsg); err != nil {
		log.Printf("Failed to mark job %s as failed: %v", job.ID, err)
	}
	w.notify(ctx, job, payload.CallbackURL)
	w.hub.BroadcastError(jobID, "PIPELINE_FAILED", errMsg)
}

// notify delivers the terminal status callback. Delivery is best
// effort and never affects the job outcome.
func (w *PipelineWorker) notify(ctx context.Context, job *model.Job, callbackURL string) {
	if callbackURL == "" {
		return
	}
	completedAt := time.Now()
	if job.CompletedAt != nil {
		completedAt = *job.CompletedAt
	}
	cb := &model.StatusCallback{
		JobID:           job.ID,
		SessionID:       job.SessionID,
		Status:          job.Status,
		Error:           job.Error,
		MetricsDeferred: job.MetricsDeferred,
		CompletedAt:     completedAt,
	}
	if err := w.notifier.NotifyStatus(ctx, callbackURL, cb); err != nil {
		log.Printf("Status callback for job %s failed: %v", job.ID, err)
	}
}

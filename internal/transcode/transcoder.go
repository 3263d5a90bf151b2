// Package transcode drives the external media engine (ffmpeg) to
// produce quality renditions, thumbnails, a preview clip and the audio
// extract consumed by the analyzer.
package transcode

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/practicetrack/api/internal/client"
	"github.com/practicetrack/api/internal/model"
)

// Artifact describes one uploaded transcoding output.
type Artifact struct {
	Kind        model.ArtifactKind
	Position    int
	StorageKey  string
	SizeBytes   int64
	ContentType string
}

// Result is the outcome of one transcoding stage run. Failed lists
// labels of optional outputs that failed permanently; the stage as a
// whole still succeeds as long as the audio extract was produced.
type Result struct {
	Duration  float64
	Artifacts []Artifact
	Failed    []string
}

// AudioExtract returns the storage key of the extracted audio track.
func (r *Result) AudioExtract() (string, bool) {
	for _, a := range r.Artifacts {
		if a.Kind == model.ArtifactAudioExtract {
			return a.StorageKey, true
		}
	}
	return "", false
}

// Transcoder produces all derived media artifacts for one raw asset.
type Transcoder interface {
	Transcode(ctx context.Context, sourcePath, keyPrefix string) (*Result, error)
}

// FFmpegTranscoder implements Transcoder on the ffmpeg/ffprobe binaries.
type FFmpegTranscoder struct {
	ffmpegPath     string
	ffprobePath    string
	tempDir        string
	concurrency    int
	previewSeconds float64
	storage        client.StorageClient
}

// NewFFmpegTranscoder creates a transcoder, verifying the engine
// binaries are present.
func NewFFmpegTranscoder(ffmpegPath, ffprobePath, tempDir string, concurrency, previewSeconds int, storage client.StorageClient) (*FFmpegTranscoder, error) {
	ffmpeg, err := lookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	ffprobe, err := lookPath(ffprobePath)
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if previewSeconds <= 0 {
		previewSeconds = 30
	}

	return &FFmpegTranscoder{
		ffmpegPath:     ffmpeg,
		ffprobePath:    ffprobe,
		tempDir:        tempDir,
		concurrency:    concurrency,
		previewSeconds: float64(previewSeconds),
		storage:        storage,
	}, nil
}

// output is one planned transcoding sub-task.
type output struct {
	label       string
	kind        model.ArtifactKind
	position    int
	fileName    string
	contentType string
	required    bool
	args        func(src, dst string) []string
}

// Transcode fans the planned outputs across a bounded number of
// concurrent engine invocations and joins them all before returning.
// Storage keys depend only on the key prefix and artifact kind, so a
// re-run of the same job overwrites rather than duplicates.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, sourcePath, keyPrefix string) (*Result, error) {
	duration, err := t.probeDuration(ctx, sourcePath)
	if err != nil {
		return nil, err
	}

	outputs := t.planOutputs(duration)

	workDir, err := os.MkdirTemp(t.tempDir, "transcode-*")
	if err != nil {
		return nil, model.NewTransientError(model.StageTranscoding, "failed to create work directory", err)
	}
	defer os.RemoveAll(workDir)

	type taskResult struct {
		out      output
		artifact *Artifact
		err      error
	}

	results := make([]taskResult, len(outputs))
	sem := make(chan struct{}, t.concurrency)
	var wg sync.WaitGroup

	for i, out := range outputs {
		wg.Add(1)
		go func(i int, out output) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			artifact, err := t.produce(ctx, sourcePath, workDir, keyPrefix, out)
			results[i] = taskResult{out: out, artifact: artifact, err: err}
		}(i, out)
	}
	wg.Wait()

	res := &Result{Duration: duration}
	var requiredErr error

	for _, tr := range results {
		switch {
		case tr.err == nil:
			res.Artifacts = append(res.Artifacts, *tr.artifact)
		case tr.out.required:
			requiredErr = tr.err
		case model.IsTransient(tr.err):
			// A transient failure on an optional output retries the
			// whole stage; completed outputs are overwritten in place.
			requiredErr = tr.err
		default:
			log.Printf("Transcode output %s failed permanently: %v", tr.out.label, tr.err)
			res.Failed = append(res.Failed, tr.out.label)
		}
	}

	if requiredErr != nil {
		return nil, requiredErr
	}
	return res, nil
}

func (t *FFmpegTranscoder) produce(ctx context.Context, sourcePath, workDir, keyPrefix string, out output) (*Artifact, error) {
	dst := filepath.Join(workDir, out.fileName)

	if err := t.runFFmpeg(ctx, out.args(sourcePath, dst)); err != nil {
		return nil, err
	}

	f, err := os.Open(dst)
	if err != nil {
		return nil, model.NewTransientError(model.StageTranscoding, "failed to open transcoded output", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, model.NewTransientError(model.StageTranscoding, "failed to stat transcoded output", err)
	}

	key := fmt.Sprintf("%s/%s", keyPrefix, out.fileName)
	if err := t.storage.Upload(ctx, key, f, out.contentType); err != nil {
		return nil, model.NewTransientError(model.StageTranscoding, "failed to upload "+out.label, err)
	}

	return &Artifact{
		Kind:        out.kind,
		Position:    out.position,
		StorageKey:  key,
		SizeBytes:   info.Size(),
		ContentType: out.contentType,
	}, nil
}

// planOutputs lists every sub-task for one asset: three renditions,
// exactly five thumbnails, the preview clip and the audio extract.
func (t *FFmpegTranscoder) planOutputs(duration float64) []output {
	outputs := []output{
		{
			label: "rendition_low", kind: model.ArtifactRenditionLow,
			fileName: "rendition_low.mp4", contentType: "video/mp4",
			args: renditionArgs(480, "800k"),
		},
		{
			label: "rendition_medium", kind: model.ArtifactRenditionMedium,
			fileName: "rendition_medium.mp4", contentType: "video/mp4",
			args: renditionArgs(720, "2000k"),
		},
		{
			label: "rendition_high", kind: model.ArtifactRenditionHigh,
			fileName: "rendition_high.mp4", contentType: "video/mp4",
			args: renditionArgs(1080, "5000k"),
		},
	}

	for i, offset := range ThumbnailOffsets(duration, model.ThumbnailCount) {
		offset := offset
		outputs = append(outputs, output{
			label:    fmt.Sprintf("thumbnail_%d", i),
			kind:     model.ArtifactThumbnail,
			position: i,
			fileName: fmt.Sprintf("thumb_%d.jpg", i), contentType: "image/jpeg",
			args: thumbnailArgs(offset),
		})
	}

	previewLen := t.previewSeconds
	if duration > 0 && duration < previewLen {
		previewLen = duration
	}
	outputs = append(outputs,
		output{
			label: "preview", kind: model.ArtifactPreview,
			fileName: "preview.mp4", contentType: "video/mp4",
			args: previewArgs(previewLen),
		},
		output{
			label: "audio_extract", kind: model.ArtifactAudioExtract,
			fileName: "audio.wav", contentType: "audio/wav",
			required: true,
			args:     audioExtractArgs(),
		},
	)

	return outputs
}

// ThumbnailOffsets returns count seek offsets evenly spaced across the
// asset, sampled at interval midpoints. Assets shorter than the
// spacing still yield count offsets, clamped into the valid range.
func ThumbnailOffsets(duration float64, count int) []float64 {
	offsets := make([]float64, count)
	if duration <= 0 {
		return offsets
	}

	spacing := duration / float64(count)
	for i := range offsets {
		off := spacing*float64(i) + spacing/2
		if off > duration {
			off = duration
		}
		offsets[i] = off
	}
	return offsets
}

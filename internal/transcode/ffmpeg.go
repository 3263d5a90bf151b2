package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/practicetrack/api/internal/model"
)

func lookPath(path string) (string, error) {
	if strings.ContainsRune(path, '/') {
		return path, nil
	}
	return exec.LookPath(path)
}

// probeDuration asks ffprobe for the asset duration in seconds. A
// probe failure on the container itself means the source is corrupt or
// unsupported.
func (t *FFmpegTranscoder) probeDuration(ctx context.Context, sourcePath string) (float64, error) {
	cmd := exec.CommandContext(ctx, t.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		sourcePath,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, classifyEngineError("ffprobe failed", err, stderr.String())
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, model.NewPermanentError(model.StageTranscoding,
			"source has no readable duration", err)
	}
	return duration, nil
}

func (t *FFmpegTranscoder) runFFmpeg(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return classifyEngineError("ffmpeg failed", err, stderr.String())
	}
	return nil
}

// corruptInputMarkers are ffmpeg/ffprobe stderr fragments that identify
// an unreadable or unsupported source rather than an engine problem.
var corruptInputMarkers = []string{
	"Invalid data found",
	"moov atom not found",
	"could not find codec",
	"Unknown format",
	"Header missing",
	"does not contain any stream",
	"No such file or directory",
}

// classifyEngineError maps an engine invocation failure onto the error
// taxonomy: corrupt/unsupported source is permanent, everything else
// (engine missing, killed, out of resources, timed out) is transient.
func classifyEngineError(message string, err error, stderr string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.NewTransientError(model.StageTranscoding, message+" (timed out)", err)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		for _, marker := range corruptInputMarkers {
			if strings.Contains(stderr, marker) {
				return model.NewPermanentError(model.StageTranscoding,
					fmt.Sprintf("%s: unsupported or corrupt source", message), err)
			}
		}
	}

	return model.NewTransientError(model.StageTranscoding, message, err)
}

func renditionArgs(height int, bitrate string) func(src, dst string) []string {
	return func(src, dst string) []string {
		return []string{
			"-y", "-i", src,
			"-vf", fmt.Sprintf("scale=-2:%d", height),
			"-c:v", "libx264", "-preset", "fast", "-b:v", bitrate,
			"-c:a", "aac", "-b:a", "128k",
			"-movflags", "+faststart",
			dst,
		}
	}
}

func thumbnailArgs(offset float64) func(src, dst string) []string {
	return func(src, dst string) []string {
		return []string{
			"-y",
			"-ss", fmt.Sprintf("%.3f", offset),
			"-i", src,
			"-frames:v", "1",
			"-vf", "scale=640:-2",
			dst,
		}
	}
}

func previewArgs(seconds float64) func(src, dst string) []string {
	return func(src, dst string) []string {
		return []string{
			"-y", "-i", src,
			"-t", fmt.Sprintf("%.3f", seconds),
			"-c:v", "libx264", "-preset", "fast", "-b:v", "1000k",
			"-c:a", "aac", "-b:a", "96k",
			"-movflags", "+faststart",
			dst,
		}
	}
}

func audioExtractArgs() func(src, dst string) []string {
	return func(src, dst string) []string {
		return []string{
			"-y", "-i", src,
			"-vn",
			"-acodec", "pcm_s16le",
			"-ar", "44100",
			"-ac", "1",
			dst,
		}
	}
}

package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicetrack/api/internal/config"
)

func TestRewritePublicURL(t *testing.T) {
	signed := "http://minio.internal:9000/recordings/sessions/abc/rendition_high.mp4?X-Amz-Signature=deadbeef&X-Amz-Expires=3600"

	out, err := RewritePublicURL(signed, "https://media.practicetrack.io")
	require.NoError(t, err)

	assert.Equal(t,
		"https://media.practicetrack.io/recordings/sessions/abc/rendition_high.mp4?X-Amz-Signature=deadbeef&X-Amz-Expires=3600",
		out)
}

func TestRewritePublicURLWithBasePath(t *testing.T) {
	signed := "http://minio.internal:9000/recordings/pending/1750991604496/preview.mp4?X-Amz-Signature=abc"

	out, err := RewritePublicURL(signed, "https://cdn.practicetrack.io/media/")
	require.NoError(t, err)

	assert.Equal(t,
		"https://cdn.practicetrack.io/media/recordings/pending/1750991604496/preview.mp4?X-Amz-Signature=abc",
		out)
}

func TestRewritePublicURLEmptyBase(t *testing.T) {
	signed := "http://minio.internal:9000/recordings/a.mp4?X-Amz-Signature=abc"

	// The rewrite is mandatory; an internal-endpoint URL must never
	// pass through unchanged.
	_, err := RewritePublicURL(signed, "")
	require.Error(t, err)
}

func TestNewS3ClientRequiresPublicBaseURL(t *testing.T) {
	cfg := &config.StorageConfig{
		Endpoint:        "http://minio.internal:9000",
		Region:          "auto",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		BucketName:      "recordings",
	}

	_, err := NewS3Client(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "public base URL")

	cfg.PublicBaseURL = "https://media.practicetrack.io"
	c, err := NewS3Client(cfg)
	require.NoError(t, err)
	assert.True(t, c.IsConfigured())
}

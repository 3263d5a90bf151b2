package client

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v4"

	"github.com/practicetrack/api/internal/config"
)

// StorageClient defines the interface for object storage operations
type StorageClient interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// S3Client implements StorageClient against any S3-compatible store.
// The store endpoint is internal-only; presigned URLs are rewritten to
// the configured public base before they leave this package, because
// consuming clients are never on the internal network.
type S3Client struct {
	s3Client      *s3.Client
	presigner     *s3.PresignClient
	bucketName    string
	endpoint      string
	publicBaseURL string
}

// NewS3Client creates a new object storage client
func NewS3Client(cfg *config.StorageConfig) (*S3Client, error) {
	if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("storage configuration incomplete")
	}
	// Without a public base, presigned URLs would leak the internal
	// store endpoint to clients that cannot reach it.
	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("storage public base URL is required")
	}

	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: cfg.Endpoint,
		}, nil
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithEndpointResolverWithOptions(resolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	presigner := s3.NewPresignClient(s3Client)

	return &S3Client{
		s3Client:      s3Client,
		presigner:     presigner,
		bucketName:    cfg.BucketName,
		endpoint:      cfg.Endpoint,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// storeBackoff bounds retries of transient store errors. Exhaustion is
// reported to the caller, which classifies it as retryable at the
// stage boundary rather than failing the job outright.
func storeBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 15 * time.Second
	return backoff.WithContext(b, ctx)
}

// Upload writes an object to the store
func (c *S3Client) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketName),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}

	// Non-seekable bodies cannot be replayed, so those uploads get a
	// single attempt and rely on the orchestrator-level retry instead.
	_, seekable := body.(io.Seeker)
	op := func() error {
		if seekable {
			if _, err := body.(io.Seeker).Seek(0, io.SeekStart); err != nil {
				return backoff.Permanent(err)
			}
		}
		_, err := c.s3Client.PutObject(ctx, input)
		if err != nil && !seekable {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, storeBackoff(ctx)); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Download fetches an object from the store
func (c *S3Client) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	}

	var body io.ReadCloser
	op := func() error {
		out, err := c.s3Client.GetObject(ctx, input)
		if err != nil {
			return err
		}
		body = out.Body
		return nil
	}

	if err := backoff.Retry(op, storeBackoff(ctx)); err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	return body, nil
}

// Delete removes an object from the store
func (c *S3Client) Delete(ctx context.Context, key string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	}

	_, err := c.s3Client.DeleteObject(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	return nil
}

// GetSignedURL generates a presigned URL for temporary access. The URL
// is always rewritten to the public base URL.
func (c *S3Client) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	}

	presignedReq, err := c.presigner.PresignGetObject(ctx, input, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return RewritePublicURL(presignedReq.URL, c.publicBaseURL)
}

// RewritePublicURL replaces the scheme and host of a presigned URL with
// the externally reachable base, preserving path and signature query.
// The rewrite is mandatory; an empty base is an error rather than a
// pass-through of the internal endpoint.
func RewritePublicURL(signed, publicBase string) (string, error) {
	if publicBase == "" {
		return "", fmt.Errorf("public base URL is required")
	}

	u, err := url.Parse(signed)
	if err != nil {
		return "", fmt.Errorf("failed to parse presigned URL: %w", err)
	}
	base, err := url.Parse(publicBase)
	if err != nil {
		return "", fmt.Errorf("failed to parse public base URL: %w", err)
	}

	u.Scheme = base.Scheme
	u.Host = base.Host
	if base.Path != "" && base.Path != "/" {
		u.Path = strings.TrimSuffix(base.Path, "/") + u.Path
	}

	return u.String(), nil
}

// IsConfigured returns true if the client has valid configuration
func (c *S3Client) IsConfigured() bool {
	return c.s3Client != nil && c.bucketName != ""
}

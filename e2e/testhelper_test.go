package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/practicetrack/api/internal/config"
	"github.com/practicetrack/api/internal/database"
	"github.com/practicetrack/api/internal/handler"
	"github.com/practicetrack/api/internal/metrics"
	"github.com/practicetrack/api/internal/middleware"
	"github.com/practicetrack/api/internal/service"
)

const testServiceToken = "test-service-token"

// testApp holds all components needed for testing
type testApp struct {
	app     *fiber.App
	storage *memoryStorage
	metrics metrics.Store
}

// memoryStorage is an in-process object store so pipeline endpoints can
// be exercised without an S3 backend.
type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[string][]byte)}
}

func (m *memoryStorage) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryStorage) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://media.test/" + key, nil
}

// setupApp creates a Fiber app wired like main.go but with an in-memory
// metrics database and object store. Redis must be running locally.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	// Redis (localhost — must be running)
	redisClient := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // use DB 15 for tests to avoid collision
	})

	// Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr: "localhost:6379",
		DB:   15,
	})
	t.Cleanup(func() { asynqClient.Close() })

	db, err := database.Initialize(&config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, false)
	if err != nil {
		t.Fatalf("failed to initialize database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	metricsStore := metrics.NewWriter(db)

	storage := newMemoryStorage()
	validate := validator.New()

	pipelineService := service.NewPipelineService(
		redisClient, asynqClient, storage, metricsStore, 3, time.Hour,
	)

	pipelineHandler := handler.NewPipelineHandler(pipelineService, validate)
	uploadHandler := handler.NewUploadHandler(pipelineService, validate)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": 1234567890})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":    redisClient.Ping(c.Context()).Err() == nil,
				"database": db.HealthCheck() == nil,
			},
		})
	})

	api := app.Group("/api", middleware.ServiceAuthMiddleware(testServiceToken))

	// Use very high rate limits so tests don't get blocked
	pipeline := api.Group("/pipeline")
	pipeline.Post("/jobs", rateLimiter.SubmitLimit(10000), pipelineHandler.Submit)
	pipeline.Post("/upload", rateLimiter.UploadLimit(10000), uploadHandler.Recording)
	pipeline.Get("/jobs/:jobId", pipelineHandler.Status)
	pipeline.Get("/sessions/:sessionId/status", pipelineHandler.SessionStatus)
	pipeline.Get("/sessions/:sessionId/analysis", pipelineHandler.SessionAnalysis)

	return &testApp{app: app, storage: storage, metrics: metricsStore}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request carrying the service token.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, method, path, body, map[string]string{
		"X-Service-Token": testServiceToken,
		"X-Caller-Id":     "e2e-tests",
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

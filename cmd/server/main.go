package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/practicetrack/api/internal/analysis"
	"github.com/practicetrack/api/internal/client"
	"github.com/practicetrack/api/internal/config"
	"github.com/practicetrack/api/internal/database"
	"github.com/practicetrack/api/internal/handler"
	"github.com/practicetrack/api/internal/metrics"
	"github.com/practicetrack/api/internal/middleware"
	"github.com/practicetrack/api/internal/service"
	"github.com/practicetrack/api/internal/transcode"
	"github.com/practicetrack/api/internal/worker"
	ws "github.com/practicetrack/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize metrics database
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	db, err := database.Initialize(&cfg.Database, isDebug)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()
	metricsStore := metrics.NewWriter(db)

	// Initialize storage client
	storageClient, err := client.NewS3Client(&cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage client: %v", err)
	}

	// Initialize transcoder
	transcoder, err := transcode.NewFFmpegTranscoder(
		cfg.Transcode.FFmpegPath,
		cfg.Transcode.FFprobePath,
		cfg.Transcode.TempDir,
		cfg.Transcode.Concurrency,
		cfg.Transcode.PreviewSeconds,
		storageClient,
	)
	if err != nil {
		log.Fatalf("Failed to initialize transcoder: %v", err)
	}

	analyzer := analysis.NewAnalyzer(cfg.Pipeline.SampleIntervalMS)
	notifier := client.NewCallbackClient(time.Duration(cfg.Pipeline.CallbackTimeout) * time.Second)

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize services
	presignTTL := time.Duration(cfg.Storage.PresignTTL) * time.Second
	pipelineService := service.NewPipelineService(
		redisClient, asynqClient, storageClient, metricsStore,
		cfg.Pipeline.MaxRetries, presignTTL,
	)

	// Initialize handlers
	pipelineHandler := handler.NewPipelineHandler(pipelineService, validate)
	uploadHandler := handler.NewUploadHandler(pipelineService, validate)

	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    500 * 1024 * 1024, // 500MB, raw recordings are large
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-Service-Token,X-Caller-Id",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":    redisClient.Ping(c.Context()).Err() == nil,
				"database": db.HealthCheck() == nil,
			},
		})
	})

	// API routes
	api := app.Group("/api")
	if cfg.Gateway.Enabled {
		log.Println("Info: Gateway mode enabled — requiring service token")
		api.Use(middleware.ServiceAuthMiddleware(cfg.Gateway.ServiceToken))
	}

	// Pipeline routes
	pipeline := api.Group("/pipeline")
	pipeline.Post("/jobs", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerHour), pipelineHandler.Submit)
	pipeline.Post("/upload", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), uploadHandler.Recording)
	pipeline.Get("/jobs/:jobId", pipelineHandler.Status)
	pipeline.Get("/sessions/:sessionId/status", pipelineHandler.SessionStatus)
	pipeline.Get("/sessions/:sessionId/analysis", pipelineHandler.SessionAnalysis)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, pipelineService, storageClient, transcoder, analyzer, metricsStore, notifier, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	pipelineService *service.PipelineService,
	storageClient client.StorageClient,
	transcoder transcode.Transcoder,
	analyzer *analysis.Analyzer,
	metricsStore metrics.Store,
	notifier client.StatusNotifier,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Pipeline.Workers,
			Queues: map[string]int{
				"pipeline": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	pipelineWorker := worker.NewPipelineWorker(
		pipelineService,
		storageClient,
		transcoder,
		analyzer,
		metricsStore,
		notifier,
		hub,
		cfg.Transcode.TempDir,
		time.Duration(cfg.Pipeline.StageTimeout)*time.Second,
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypePipeline, pipelineWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}

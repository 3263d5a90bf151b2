package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Pipeline  PipelineConfig
	Transcode TranscodeConfig
	Gateway   GatewayConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StorageConfig configures the S3-compatible object store. Endpoint is
// the internal store address; PublicBaseURL is the externally routable
// base that presigned URLs are rewritten to.
type StorageConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicBaseURL   string
	PresignTTL      int // seconds
}

type DatabaseConfig struct {
	Driver string // "sqlite" or "mysql"
	Path   string // sqlite file path
	DSN    string // mysql DSN
}

type PipelineConfig struct {
	Workers          int
	MaxRetries       int
	StageTimeout     int // seconds, per stage
	CallbackTimeout  int // seconds
	SampleIntervalMS int // analysis frame hop in milliseconds
}

type TranscodeConfig struct {
	FFmpegPath     string
	FFprobePath    string
	TempDir        string
	Concurrency    int // internal fan-out limit
	PreviewSeconds int
}

type GatewayConfig struct {
	Enabled      bool
	ServiceToken string
}

type RateLimitConfig struct {
	SubmitPerHour int
	UploadPerHour int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")
	readSecret("GATEWAY_SERVICE_TOKEN")
	readSecret("DATABASE_DSN")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = viper.BindEnv("storage.region", "STORAGE_REGION")
	_ = viper.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.bucket_name", "STORAGE_BUCKET_NAME")
	_ = viper.BindEnv("storage.public_base_url", "STORAGE_PUBLIC_BASE_URL")
	_ = viper.BindEnv("storage.presign_ttl", "STORAGE_PRESIGN_TTL")
	_ = viper.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = viper.BindEnv("database.path", "DATABASE_PATH")
	_ = viper.BindEnv("database.dsn", "DATABASE_DSN")
	_ = viper.BindEnv("pipeline.workers", "PIPELINE_WORKERS")
	_ = viper.BindEnv("pipeline.max_retries", "PIPELINE_MAX_RETRIES")
	_ = viper.BindEnv("pipeline.stage_timeout", "PIPELINE_STAGE_TIMEOUT")
	_ = viper.BindEnv("pipeline.callback_timeout", "PIPELINE_CALLBACK_TIMEOUT")
	_ = viper.BindEnv("pipeline.sample_interval_ms", "PIPELINE_SAMPLE_INTERVAL_MS")
	_ = viper.BindEnv("transcode.ffmpeg_path", "FFMPEG_PATH")
	_ = viper.BindEnv("transcode.ffprobe_path", "FFPROBE_PATH")
	_ = viper.BindEnv("transcode.temp_dir", "TRANSCODE_TEMP_DIR")
	_ = viper.BindEnv("transcode.concurrency", "TRANSCODE_CONCURRENCY")
	_ = viper.BindEnv("transcode.preview_seconds", "TRANSCODE_PREVIEW_SECONDS")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("gateway.service_token", "GATEWAY_SERVICE_TOKEN")
	_ = viper.BindEnv("ratelimit.submit_per_hour", "RATELIMIT_SUBMIT_PER_HOUR")
	_ = viper.BindEnv("ratelimit.upload_per_hour", "RATELIMIT_UPLOAD_PER_HOUR")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("storage.region", "auto")
	viper.SetDefault("storage.presign_ttl", 3600)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "./data/practicetrack.db")
	viper.SetDefault("pipeline.workers", 4)
	viper.SetDefault("pipeline.max_retries", 5)
	viper.SetDefault("pipeline.stage_timeout", 300)
	viper.SetDefault("pipeline.callback_timeout", 10)
	viper.SetDefault("pipeline.sample_interval_ms", 250)
	viper.SetDefault("transcode.ffmpeg_path", "ffmpeg")
	viper.SetDefault("transcode.ffprobe_path", "ffprobe")
	viper.SetDefault("transcode.temp_dir", os.TempDir())
	viper.SetDefault("transcode.concurrency", 4)
	viper.SetDefault("transcode.preview_seconds", 30)
	viper.SetDefault("gateway.enabled", false)
	viper.SetDefault("ratelimit.submit_per_hour", 60)
	viper.SetDefault("ratelimit.upload_per_hour", 50)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Storage: StorageConfig{
			Endpoint:        viper.GetString("storage.endpoint"),
			Region:          viper.GetString("storage.region"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			BucketName:      viper.GetString("storage.bucket_name"),
			PublicBaseURL:   viper.GetString("storage.public_base_url"),
			PresignTTL:      viper.GetInt("storage.presign_ttl"),
		},
		Database: DatabaseConfig{
			Driver: viper.GetString("database.driver"),
			Path:   viper.GetString("database.path"),
			DSN:    viper.GetString("database.dsn"),
		},
		Pipeline: PipelineConfig{
			Workers:          viper.GetInt("pipeline.workers"),
			MaxRetries:       viper.GetInt("pipeline.max_retries"),
			StageTimeout:     viper.GetInt("pipeline.stage_timeout"),
			CallbackTimeout:  viper.GetInt("pipeline.callback_timeout"),
			SampleIntervalMS: viper.GetInt("pipeline.sample_interval_ms"),
		},
		Transcode: TranscodeConfig{
			FFmpegPath:     viper.GetString("transcode.ffmpeg_path"),
			FFprobePath:    viper.GetString("transcode.ffprobe_path"),
			TempDir:        viper.GetString("transcode.temp_dir"),
			Concurrency:    viper.GetInt("transcode.concurrency"),
			PreviewSeconds: viper.GetInt("transcode.preview_seconds"),
		},
		Gateway: GatewayConfig{
			Enabled:      viper.GetBool("gateway.enabled"),
			ServiceToken: viper.GetString("gateway.service_token"),
		},
		RateLimit: RateLimitConfig{
			SubmitPerHour: viper.GetInt("ratelimit.submit_per_hour"),
			UploadPerHour: viper.GetInt("ratelimit.upload_per_hour"),
		},
	}

	return cfg, nil
}

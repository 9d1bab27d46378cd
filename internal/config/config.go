package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	DefaultImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".gif"}
	DefaultVideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".wmv", ".flv"}
)

type Config struct {
	Port          int
	MetricsPort   int
	MaxUploadSize int64
	MaxEntrySize  int64
	BaseURL       string

	Environment string
	LogLevel    string
	LogFormat   string

	AllowedOrigins []string
	RateLimit      int
	RateLimitBurst int
	SyncTimeout    time.Duration

	DataDir    string
	MediaRoot  string
	StagingDir string
	ArchiveDir string
	// ThumbnailDir caches previews; it must sit outside MediaRoot.
	ThumbnailDir     string
	ThumbnailQuality int

	// ArchiveBackend selects where raw uploads are retained: "local" or "minio".
	ArchiveBackend string

	DatabaseURL string
	RedisURL    string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIORegion    string

	// Dispatch selects who runs extraction jobs: "local" runs them in the
	// API process, "queue" hands them to cmd/worker through Redis Streams.
	Dispatch string

	WorkerConcurrency int
	VideoConcurrency  int
	JobQueueSize      int
	JobTimeout        time.Duration

	FFmpegPath  string
	FFprobePath string

	DefaultMaxFrames     int
	DefaultFrameInterval int
	ImageExtensions      []string
	VideoExtensions      []string

	ArchiveRetention time.Duration
	FolderRetention  time.Duration
	CleanupSchedule  string

	// WebhookURLs receive a signed event when a job completes or fails.
	WebhookURLs    []string
	WebhookSecret  string
	WebhookTimeout time.Duration

	TracingEnabled  bool
	OTLPEndpoint    string
	TraceSampleRate float64
}

func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.Port = getEnvInt("PORT", 8080)
	cfg.MetricsPort = getEnvInt("METRICS_PORT", 9090)
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 2*1024*1024*1024)
	cfg.MaxEntrySize = getEnvInt64("MAX_ENTRY_SIZE", 512*1024*1024)
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")

	cfg.Environment = getEnvString("ENVIRONMENT", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.LogFormat = getEnvString("LOG_FORMAT", "json")

	cfg.AllowedOrigins = getEnvStrings("CORS_ALLOWED_ORIGINS")
	cfg.RateLimit = getEnvInt("RATE_LIMIT", 5)
	cfg.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 20)
	cfg.SyncTimeout, err = getEnvDuration("SYNC_TIMEOUT", "30m")
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_TIMEOUT: %w", err)
	}

	cfg.DataDir = getEnvString("DATA_DIR", ".")
	cfg.MediaRoot = getEnvString("MEDIA_ROOT", filepath.Join(cfg.DataDir, "static", "images"))
	cfg.StagingDir = getEnvString("STAGING_DIR", filepath.Join(cfg.DataDir, "staging"))
	cfg.ArchiveDir = getEnvString("ARCHIVE_DIR", filepath.Join(cfg.DataDir, "uploads"))
	cfg.ThumbnailDir = getEnvString("THUMBNAIL_DIR", filepath.Join(cfg.DataDir, "thumbnails"))
	cfg.ThumbnailQuality = getEnvInt("THUMBNAIL_QUALITY", 80)
	cfg.ArchiveBackend = getEnvString("ARCHIVE_BACKEND", "local")

	// Optional backends; features that need them are disabled when unset.
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.MinIOEndpoint = os.Getenv("MINIO_ENDPOINT")
	cfg.MinIOAccessKey = os.Getenv("MINIO_ACCESS_KEY")
	cfg.MinIOSecretKey = os.Getenv("MINIO_SECRET_KEY")
	cfg.MinIOBucket = getEnvString("MINIO_BUCKET", "archives")
	cfg.MinIOUseSSL = getEnvBool("MINIO_USE_SSL", false)
	cfg.MinIORegion = getEnvString("MINIO_REGION", "us-east-1")

	cfg.Dispatch = getEnvString("DISPATCH", "local")
	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", 4)
	cfg.VideoConcurrency = getEnvInt("VIDEO_CONCURRENCY", 2)
	cfg.JobQueueSize = getEnvInt("JOB_QUEUE_SIZE", 64)
	cfg.JobTimeout, err = getEnvDuration("JOB_TIMEOUT", "60m")
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_TIMEOUT: %w", err)
	}

	cfg.FFmpegPath = getEnvString("FFMPEG_PATH", "ffmpeg")
	cfg.FFprobePath = getEnvString("FFPROBE_PATH", "ffprobe")

	cfg.DefaultMaxFrames = getEnvInt("DEFAULT_MAX_FRAMES", 100)
	cfg.DefaultFrameInterval = getEnvInt("DEFAULT_FRAME_INTERVAL", 1)
	cfg.ImageExtensions = getEnvList("IMAGE_EXTENSIONS", DefaultImageExtensions)
	cfg.VideoExtensions = getEnvList("VIDEO_EXTENSIONS", DefaultVideoExtensions)

	cfg.ArchiveRetention, err = getEnvDuration("ARCHIVE_RETENTION", "168h")
	if err != nil {
		return nil, fmt.Errorf("invalid ARCHIVE_RETENTION: %w", err)
	}
	cfg.FolderRetention, err = getEnvDuration("FOLDER_RETENTION", "0s")
	if err != nil {
		return nil, fmt.Errorf("invalid FOLDER_RETENTION: %w", err)
	}
	cfg.CleanupSchedule = os.Getenv("CLEANUP_SCHEDULE")

	cfg.WebhookURLs = getEnvStrings("WEBHOOK_URLS")
	cfg.WebhookSecret = os.Getenv("WEBHOOK_SECRET")
	cfg.WebhookTimeout, err = getEnvDuration("WEBHOOK_TIMEOUT", "10s")
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}

	cfg.TracingEnabled = getEnvBool("TRACING_ENABLED", false)
	cfg.OTLPEndpoint = getEnvString("OTLP_ENDPOINT", "localhost:4317")
	cfg.TraceSampleRate = getEnvFloat("TRACE_SAMPLE_RATE", 1.0)

	return cfg, nil
}

// HasMinIO reports whether enough MinIO settings are present to connect.
func (c *Config) HasMinIO() bool {
	return c.MinIOEndpoint != "" && c.MinIOAccessKey != "" && c.MinIOSecretKey != ""
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return time.ParseDuration(value)
}

func getEnvStrings(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvList parses a comma separated list of extensions, normalising each to
// a lower-case value with a leading dot.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, ".") {
			part = "." + part
		}
		out = append(out, part)
	}
	return out
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.MaxUploadSize < 1 {
		return fmt.Errorf("invalid max upload size: %d", c.MaxUploadSize)
	}

	if c.MaxEntrySize < 1 {
		return fmt.Errorf("invalid max entry size: %d", c.MaxEntrySize)
	}

	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("invalid worker concurrency: %d", c.WorkerConcurrency)
	}

	if c.VideoConcurrency < 1 {
		return fmt.Errorf("invalid video concurrency: %d", c.VideoConcurrency)
	}

	if c.JobQueueSize < 1 {
		return fmt.Errorf("invalid job queue size: %d", c.JobQueueSize)
	}

	if c.DefaultMaxFrames < 1 || c.DefaultMaxFrames > 500 {
		return fmt.Errorf("invalid default max frames: %d (must be 1-500)", c.DefaultMaxFrames)
	}

	if c.DefaultFrameInterval < 1 || c.DefaultFrameInterval > 10 {
		return fmt.Errorf("invalid default frame interval: %d (must be 1-10)", c.DefaultFrameInterval)
	}

	if c.MediaRoot == "" {
		return fmt.Errorf("MEDIA_ROOT is required")
	}

	if c.ThumbnailDir != "" {
		if rel, err := filepath.Rel(c.MediaRoot, c.ThumbnailDir); err == nil && filepath.IsLocal(rel) {
			return fmt.Errorf("THUMBNAIL_DIR must be outside MEDIA_ROOT")
		}
	}
	if c.ThumbnailQuality < 1 || c.ThumbnailQuality > 100 {
		return fmt.Errorf("invalid thumbnail quality: %d (must be 1-100)", c.ThumbnailQuality)
	}

	switch c.ArchiveBackend {
	case "local":
	case "minio":
		if !c.HasMinIO() {
			return fmt.Errorf("ARCHIVE_BACKEND=minio requires MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY")
		}
	default:
		return fmt.Errorf("invalid archive backend: %q", c.ArchiveBackend)
	}

	switch c.Dispatch {
	case "local":
	case "queue":
		if c.RedisURL == "" {
			return fmt.Errorf("DISPATCH=queue requires REDIS_URL")
		}
	default:
		return fmt.Errorf("invalid dispatch mode: %q", c.Dispatch)
	}

	if c.RateLimit < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("invalid rate limit: %d/s burst %d", c.RateLimit, c.RateLimitBurst)
	}

	for _, u := range c.WebhookURLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("invalid webhook url: %q", u)
		}
	}

	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %q", c.LogFormat)
	}

	return nil
}

package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/frameset/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnv(t *testing.T, env map[string]string) {
	t.Helper()
	for k, v := range env {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, map[string]string{"DATA_DIR": "/srv/frameset"})

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, filepath.Join("/srv/frameset", "static", "images"), cfg.MediaRoot)
	assert.Equal(t, filepath.Join("/srv/frameset", "uploads"), cfg.ArchiveDir)
	assert.Equal(t, filepath.Join("/srv/frameset", "thumbnails"), cfg.ThumbnailDir)
	assert.Equal(t, 80, cfg.ThumbnailQuality)
	assert.Equal(t, 100, cfg.DefaultMaxFrames)
	assert.Equal(t, 1, cfg.DefaultFrameInterval)
	assert.Equal(t, config.DefaultImageExtensions, cfg.ImageExtensions)
	assert.Equal(t, config.DefaultVideoExtensions, cfg.VideoExtensions)
	assert.Equal(t, 168*time.Hour, cfg.ArchiveRetention)
	assert.Equal(t, "local", cfg.ArchiveBackend)
	assert.Equal(t, "local", cfg.Dispatch)
	assert.Equal(t, 30*time.Minute, cfg.SyncTimeout)
	assert.Zero(t, cfg.FolderRetention)
	assert.Empty(t, cfg.AllowedOrigins)
	require.NoError(t, cfg.Validate())
}

func TestLoad_ServerSettings(t *testing.T) {
	setEnv(t, map[string]string{
		"CORS_ALLOWED_ORIGINS": "https://frames.example.com, ,http://localhost:3000",
		"FOLDER_RETENTION":     "720h",
		"DISPATCH":             "queue",
		"REDIS_URL":            "redis://localhost:6379/0",
		"RATE_LIMIT":           "2",
		"WEBHOOK_URLS":         "https://hooks.example.com/frames",
		"WEBHOOK_TIMEOUT":      "3s",
	})

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://frames.example.com", "http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, 720*time.Hour, cfg.FolderRetention)
	assert.Equal(t, 2, cfg.RateLimit)
	assert.Equal(t, []string{"https://hooks.example.com/frames"}, cfg.WebhookURLs)
	assert.Equal(t, 3*time.Second, cfg.WebhookTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ExtensionList(t *testing.T) {
	t.Setenv("IMAGE_EXTENSIONS", "JPG, png,,.webp")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{".jpg", ".png", ".webp"}, cfg.ImageExtensions)
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("JOB_TIMEOUT", "soon")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JOB_TIMEOUT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"max frames too high", map[string]string{"DEFAULT_MAX_FRAMES": "501"}, "max frames"},
		{"interval zero", map[string]string{"DEFAULT_FRAME_INTERVAL": "0"}, "frame interval"},
		{"interval too high", map[string]string{"DEFAULT_FRAME_INTERVAL": "11"}, "frame interval"},
		{"bad port", map[string]string{"PORT": "70000"}, "invalid port"},
		{"minio without credentials", map[string]string{"ARCHIVE_BACKEND": "minio"}, "MINIO_ENDPOINT"},
		{"unknown backend", map[string]string{"ARCHIVE_BACKEND": "ftp"}, "archive backend"},
		{"unknown log format", map[string]string{"LOG_FORMAT": "xml"}, "log format"},
		{"queue dispatch without redis", map[string]string{"DISPATCH": "queue"}, "REDIS_URL"},
		{"unknown dispatch", map[string]string{"DISPATCH": "carrier-pigeon"}, "dispatch mode"},
		{"negative rate limit", map[string]string{"RATE_LIMIT": "-1"}, "rate limit"},
		{"thumbnails inside media root", map[string]string{"MEDIA_ROOT": "/srv/media", "THUMBNAIL_DIR": "/srv/media/.thumbs"}, "THUMBNAIL_DIR"},
		{"thumbnail quality", map[string]string{"THUMBNAIL_QUALITY": "0"}, "thumbnail quality"},
		{"webhook without scheme", map[string]string{"WEBHOOK_URLS": "hooks.example.com/frames"}, "webhook url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(t, tt.env)
			cfg, err := config.Load()
			require.NoError(t, err)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHasMinIO(t *testing.T) {
	setEnv(t, map[string]string{
		"MINIO_ENDPOINT":   "localhost:9000",
		"MINIO_ACCESS_KEY": "minioadmin",
		"MINIO_SECRET_KEY": "minioadmin",
		"ARCHIVE_BACKEND":  "minio",
	})

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.HasMinIO())
	assert.NoError(t, cfg.Validate())
}

// Package api exposes uploads, job status and the media catalog over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abdul-hamid-achik/frameset/internal/apperror"
	"github.com/abdul-hamid-achik/frameset/internal/audit"
	"github.com/abdul-hamid-achik/frameset/internal/catalog"
	"github.com/abdul-hamid-achik/frameset/internal/health"
	"github.com/abdul-hamid-achik/frameset/internal/job"
	"github.com/abdul-hamid-achik/frameset/internal/logger"
	"github.com/abdul-hamid-achik/frameset/internal/metrics"
	"github.com/abdul-hamid-achik/frameset/internal/storage"
	"github.com/abdul-hamid-achik/frameset/internal/tracing"
)

const (
	defaultMaxUploadSize = 2 << 30
	defaultSyncTimeout   = 30 * time.Minute
)

type Config struct {
	Service  *job.Service
	Catalog  *catalog.Catalog
	Archives *storage.ArchiveStore
	Health   *health.Checker
	// Audit records uploads and deletions; nil disables the trail.
	Audit *audit.Logger
	// Thumbnails serves /thumbnail; nil leaves the route unmounted.
	Thumbnails Thumbnailer

	// Defaults fill intake parameters the client leaves out.
	Defaults        job.Params
	ImageExtensions []string
	VideoExtensions []string

	MaxUploadSize int64
	// SyncTimeout bounds how long process_sync=true requests wait.
	SyncTimeout time.Duration

	AllowedOrigins []string
	DevMode        bool
	// Limiter throttles uploads and deletions; nil disables rate limiting.
	Limiter Limiter

	// ServeMetrics mounts /metrics on this router instead of a side port.
	ServeMetrics bool
}

func NewRouter(cfg *Config) http.Handler {
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = defaultMaxUploadSize
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = defaultSyncTimeout
	}
	checker := cfg.Health
	if checker == nil {
		checker = health.NewChecker()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", health.HealthHandler(checker))
	mux.HandleFunc("GET /health/live", health.LivenessHandler())
	mux.HandleFunc("GET /health/ready", health.ReadinessHandler(checker))
	if cfg.ServeMetrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	limited := func(h http.HandlerFunc) http.Handler {
		if cfg.Limiter == nil {
			return h
		}
		return RateLimit(cfg.Limiter)(h)
	}

	mux.Handle("POST /upload_zip", limited(uploadZipHandler(cfg)))
	mux.HandleFunc("GET /list_uploads", listUploadsHandler(cfg))
	mux.Handle("DELETE /delete_upload", limited(deleteUploadHandler(cfg)))

	mux.HandleFunc("GET /jobs", listJobsHandler(cfg))
	mux.HandleFunc("GET /jobs/{id}", getJobHandler(cfg))
	mux.HandleFunc("GET /jobs/{id}/stats", jobStatsHandler(cfg))

	mux.HandleFunc("GET /catalog", catalogHandler(cfg))
	mux.HandleFunc("GET /list_images", listImagesHandler(cfg))
	mux.HandleFunc("GET /list_upload_folders", listFoldersHandler(cfg))
	mux.Handle("DELETE /delete_image", limited(deleteImageHandler(cfg)))
	mux.Handle("DELETE /delete_upload_folder", limited(deleteFolderHandler(cfg)))

	mux.HandleFunc("POST /improve_model", improveModelHandler())

	if cfg.Catalog != nil {
		mux.Handle("GET /static/images/", http.StripPrefix("/static/images/", staticHandler(cfg.Catalog)))
		if cfg.Thumbnails != nil {
			mux.HandleFunc("GET /thumbnail", thumbnailHandler(cfg))
		}
	}

	var handler http.Handler = mux
	handler = metrics.HTTPMetricsMiddleware(handler)
	handler = CORSWithOrigins(cfg.AllowedOrigins, cfg.DevMode)(handler)
	handler = SecurityHeaders(handler)
	handler = RequestLogger(handler)
	handler = Recovery(handler)
	handler = RequestID(handler)
	handler = tracing.HTTPMiddleware(health.ServiceName)(handler)
	return handler
}

// recordAudit never fails the request; a lost entry is only logged.
func recordAudit(cfg *Config, r *http.Request, entry audit.Entry) {
	if err := cfg.Audit.LogFromRequest(r, entry); err != nil {
		logger.FromContext(r.Context()).Warn("failed to record audit entry", "action", entry.Action, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError translates package errors into API errors.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.Error
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &appErr):
	case errors.As(err, &maxBytes):
		appErr = apperror.Wrap(err, apperror.ErrFileTooLarge)
	case errors.Is(err, job.ErrNotFound):
		appErr = apperror.Wrap(err, apperror.ErrJobNotFound)
	case errors.Is(err, job.ErrInvalidParams):
		appErr = apperror.Wrap(err, apperror.WithMessage(apperror.ErrBadRequest, err.Error()))
	case errors.Is(err, job.ErrQueueFull):
		appErr = apperror.Wrap(err, apperror.ErrQueueFull)
	case errors.Is(err, job.ErrPoolStopped):
		appErr = apperror.Wrap(err, apperror.ErrServiceUnavailable)
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		appErr = apperror.Wrap(err, apperror.ErrNotFound)
	case errors.Is(err, storage.ErrInvalidKey), errors.Is(err, catalog.ErrInvalidPath):
		appErr = apperror.Wrap(err, apperror.ErrInvalidPath)
	default:
		appErr = apperror.Wrap(err, apperror.ErrInternal)
	}
	apperror.WriteJSON(w, r, appErr)
}

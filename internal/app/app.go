// Package app assembles the components shared by the frameset binaries from
// a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/abdul-hamid-achik/frameset/internal/audit"
	"github.com/abdul-hamid-achik/frameset/internal/catalog"
	"github.com/abdul-hamid-achik/frameset/internal/config"
	"github.com/abdul-hamid-achik/frameset/internal/health"
	"github.com/abdul-hamid-achik/frameset/internal/job"
	"github.com/abdul-hamid-achik/frameset/internal/media"
	"github.com/abdul-hamid-achik/frameset/internal/metrics"
	"github.com/abdul-hamid-achik/frameset/internal/processor"
	imageproc "github.com/abdul-hamid-achik/frameset/internal/processor/image"
	"github.com/abdul-hamid-achik/frameset/internal/processor/video"
	"github.com/abdul-hamid-achik/frameset/internal/storage"
	"github.com/abdul-hamid-achik/frameset/internal/store"
	"github.com/abdul-hamid-achik/frameset/internal/webhook"
)

// Components are the long-lived pieces every binary needs. Redis and DB are
// nil when their URLs are not configured.
type Components struct {
	Archives *storage.ArchiveStore
	Tracker  *job.Tracker
	Pipeline *job.Pipeline
	Catalog  *catalog.Catalog
	Health   *health.Checker
	Audit    *audit.Logger
	// Thumbnails renders catalog previews into cfg.ThumbnailDir.
	Thumbnails *imageproc.Thumbnailer

	Redis *redis.Client
	DB    *pgxpool.Pool

	closers []func()
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	backend, err := openArchiveBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	c.Archives = storage.NewArchiveStore(metrics.NewInstrumentedStorage(backend))

	var statusStores []job.StatusStore
	var auditSink audit.Sink
	if cfg.RedisURL != "" {
		log.Info("connecting to redis")
		client, err := store.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		c.closers = append(c.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		c.Redis = client
		statusStores = append(statusStores, store.NewRedisStore(client))
		log.Info("redis connected")
	}

	if cfg.DatabaseURL != "" {
		log.Info("running database migrations")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("connecting to database")
		pool, err := store.Connect(ctx, store.DatabaseConfig{URL: cfg.DatabaseURL})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		c.closers = append(c.closers, pool.Close)
		c.DB = pool
		pg := store.NewPostgresStore(pool)
		statusStores = append(statusStores, pg)
		auditSink = pg
		log.Info("database connected")
	}

	var trackerOpts []job.TrackerOption
	switch len(statusStores) {
	case 0:
	case 1:
		trackerOpts = append(trackerOpts, job.WithStatusStore(statusStores[0]))
	default:
		trackerOpts = append(trackerOpts, job.WithStatusStore(store.NewTiered(statusStores[0], statusStores[1])))
	}
	if len(cfg.WebhookURLs) > 0 {
		notifier := webhook.NewNotifier(cfg.WebhookURLs, cfg.WebhookTimeout,
			webhook.WithSecret(cfg.WebhookSecret),
			webhook.WithLogger(log),
		)
		c.closers = append(c.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := notifier.Close(ctx); err != nil {
				log.Warn("webhook deliveries still in flight at shutdown", "error", err)
			}
		})
		trackerOpts = append(trackerOpts, job.WithNotifier(notifier))
		log.Info("job webhooks enabled", "endpoints", len(cfg.WebhookURLs), "signed", cfg.WebhookSecret != "")
	}
	c.Tracker = job.NewTracker(trackerOpts...)

	registry := processor.NewRegistry()
	registry.Register("image_store", imageproc.NewStoreProcessor())
	decoder, err := video.NewFFmpegDecoder(&video.VideoConfig{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		TempDir:     cfg.StagingDir,
		JPEGQuality: video.DefaultVideoConfig().JPEGQuality,
	})
	if err != nil {
		log.Warn("frame sampler unavailable, video entries will fail", "error", err)
	} else {
		registry.Register("frame_sampler", video.NewFrameSampler(decoder))
	}
	log.Info("processor registry ready", "processors", registry.List())

	c.Pipeline = job.NewPipeline(job.PipelineConfig{
		MediaRoot:        cfg.MediaRoot,
		StagingRoot:      cfg.StagingDir,
		MaxEntrySize:     cfg.MaxEntrySize,
		VideoConcurrency: cfg.VideoConcurrency,
	}, c.Tracker, c.Archives, media.NewClassifier(cfg.ImageExtensions, cfg.VideoExtensions), registry)

	c.Audit = audit.NewLogger(auditSink)
	c.Catalog = catalog.New(cfg.MediaRoot, cfg.ImageExtensions)
	c.Thumbnails = imageproc.NewThumbnailer(cfg.ThumbnailDir, cfg.ThumbnailQuality)

	c.Health = health.NewChecker().
		WithDirectory("media_root", cfg.MediaRoot).
		WithStorage(c.Archives)
	if c.Redis != nil {
		c.Health.WithRedis(c.Redis)
	}
	if c.DB != nil {
		c.Health.WithDatabase(c.DB)
	}

	ok = true
	return c, nil
}

func openArchiveBackend(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Storage, error) {
	switch cfg.ArchiveBackend {
	case "minio":
		log.Info("connecting to object storage", "endpoint", cfg.MinIOEndpoint, "bucket", cfg.MinIOBucket)
		s, err := storage.NewMinIOStorage(&storage.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			Region:    cfg.MinIORegion,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket: %w", err)
		}
		log.Info("object storage connected")
		return s, nil
	case "local", "":
		s, err := storage.NewLocalStorage(cfg.ArchiveDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive dir: %w", err)
		}
		return s, nil
	default:
		return nil, errors.New("unknown archive backend: " + cfg.ArchiveBackend)
	}
}

// Close releases connections in reverse order of acquisition.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

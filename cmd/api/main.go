package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/job-queue/pkg/broker"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abdul-hamid-achik/frameset/internal/api"
	"github.com/abdul-hamid-achik/frameset/internal/app"
	"github.com/abdul-hamid-achik/frameset/internal/config"
	"github.com/abdul-hamid-achik/frameset/internal/health"
	"github.com/abdul-hamid-achik/frameset/internal/job"
	"github.com/abdul-hamid-achik/frameset/internal/logger"
	"github.com/abdul-hamid-achik/frameset/internal/metrics"
	"github.com/abdul-hamid-achik/frameset/internal/tracing"
	"github.com/abdul-hamid-achik/frameset/internal/worker"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Default()

	log.Info("configuration loaded", "environment", cfg.Environment, "dispatch", cfg.Dispatch, "archive_backend", cfg.ArchiveBackend)

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, &tracing.Config{
		ServiceName:    health.ServiceName + "-api",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.TracingEnabled,
		SampleRate:     cfg.TraceSampleRate,
		Dispatch:       cfg.Dispatch,
		ArchiveBackend: cfg.ArchiveBackend,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()
	if cfg.TracingEnabled {
		log.Info("tracing enabled", "endpoint", cfg.OTLPEndpoint, "sample_rate", cfg.TraceSampleRate)
	}

	components, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer components.Close()

	metrics.SetAppInfo(version, cfg.Environment, "api")

	var (
		dispatcher  job.Dispatcher
		serviceOpts []job.ServiceOption
		pool        *job.Pool
	)
	switch cfg.Dispatch {
	case "queue":
		b := broker.NewRedisStreamsBroker(components.Redis)
		dispatcher = worker.NewEnqueuer(b)
		serviceOpts = append(serviceOpts, job.WithRemoteDispatch())
		log.Info("dispatching jobs through the queue")
	default:
		pool = job.NewPool(components.Pipeline, job.PoolConfig{
			Workers:    cfg.WorkerConcurrency,
			QueueSize:  cfg.JobQueueSize,
			JobTimeout: cfg.JobTimeout,
		})
		pool.Start(ctx)
		dispatcher = pool
		metrics.SetWorkerPoolSize(cfg.WorkerConcurrency)
		log.Info("in-process worker pool started", "workers", cfg.WorkerConcurrency, "queue_size", cfg.JobQueueSize)
	}

	service := job.NewService(components.Tracker, components.Archives, dispatcher, cfg.MediaRoot, serviceOpts...)

	var scheduler *worker.Scheduler
	if cfg.CleanupSchedule != "" {
		scheduler, err = worker.NewScheduler(ctx, cfg.CleanupSchedule, &worker.CleanupDependencies{
			Archives:         components.Archives,
			Tracker:          components.Tracker,
			Catalog:          components.Catalog,
			Thumbnails:       components.Thumbnails,
			ArchiveRetention: cfg.ArchiveRetention,
			FolderRetention:  cfg.FolderRetention,
		})
		if err != nil {
			return err
		}
		scheduler.Start()
		log.Info("cleanup scheduled", "schedule", cfg.CleanupSchedule)
	}

	var limiter *api.HybridRateLimiter
	if cfg.RateLimit > 0 {
		limiter = api.NewHybridRateLimiter(components.Redis, cfg.RateLimit, cfg.RateLimitBurst)
		defer limiter.Stop()
	}

	defaults := job.DefaultParams()
	defaults.MaxFrames = cfg.DefaultMaxFrames
	defaults.FrameInterval = cfg.DefaultFrameInterval

	apiCfg := &api.Config{
		Service:         service,
		Catalog:         components.Catalog,
		Archives:        components.Archives,
		Health:          components.Health,
		Audit:           components.Audit,
		Thumbnails:      components.Thumbnails,
		Defaults:        defaults,
		ImageExtensions: cfg.ImageExtensions,
		VideoExtensions: cfg.VideoExtensions,
		MaxUploadSize:   cfg.MaxUploadSize,
		SyncTimeout:     cfg.SyncTimeout,
		AllowedOrigins:  cfg.AllowedOrigins,
		DevMode:         cfg.Environment == "development",
	}
	if limiter != nil {
		apiCfg.Limiter = limiter
	}

	// Uploads stream for as long as the client sends, so there is no
	// server-wide read or write deadline.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.NewRouter(apiCfg),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/health", health.LivenessHandler())
	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics server starting", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port, "url", cfg.BaseURL)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
			log.Error("forced shutdown", "error", err)
		}
		if scheduler != nil {
			if err := scheduler.Stop(shutdownCtx); err != nil {
				log.Error("error stopping cleanup scheduler", "error", err)
			}
		}
		if pool != nil {
			if err := pool.Stop(shutdownCtx); err != nil {
				log.Error("error stopping worker pool", "error", err)
			}
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("error stopping metrics server", "error", err)
		}
	}

	log.Info("server stopped gracefully")
	return nil
}

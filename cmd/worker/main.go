package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/job-queue/pkg/broker"
	"github.com/abdul-hamid-achik/job-queue/pkg/middleware"
	queueworker "github.com/abdul-hamid-achik/job-queue/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

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
	if cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required for the worker")
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Default()

	log.Info("configuration loaded")

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, &tracing.Config{
		ServiceName:    health.ServiceName + "-worker",
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

	zerologger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "worker").Logger()

	components, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer components.Close()

	b := broker.NewRedisStreamsBroker(components.Redis,
		broker.WithWorkerID(fmt.Sprintf("worker-%d", os.Getpid())),
	)
	log.Info("broker initialized")

	metrics.SetAppInfo(version, cfg.Environment, "worker")
	metrics.SetWorkerPoolSize(cfg.WorkerConcurrency)

	registry := queueworker.NewRegistry()
	if err := registry.Register(job.JobType, worker.ExtractHandler(&worker.Dependencies{
		Tracker:  components.Tracker,
		Pipeline: components.Pipeline,
	})); err != nil {
		return fmt.Errorf("failed to register handler: %w", err)
	}

	registry.Use(
		middleware.RecoveryMiddleware(zerologger),
		middleware.LoggingMiddleware(zerologger),
		middleware.TimeoutMiddleware(cfg.JobTimeout),
		middleware.MetricsMiddleware(metrics.NewJobCollector()),
	)

	log.Info("creating worker pool", "concurrency", cfg.WorkerConcurrency)

	workerPool := queueworker.NewPool(b, registry,
		queueworker.WithConcurrency(cfg.WorkerConcurrency),
		queueworker.WithPoolQueues([]string{"default"}),
		queueworker.WithPoolPollInterval(time.Second),
		queueworker.WithShutdownTimeout(30*time.Second),
		queueworker.WithPoolLogger(zerologger),
	)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsMux.HandleFunc("/health", health.LivenessHandler())
	metricsMux.HandleFunc("/health/ready", health.ReadinessHandler(components.Health))

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

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	poolErr := make(chan error, 1)
	go func() {
		log.Info("starting worker pool")
		poolErr <- workerPool.Start(ctx)
	}()

	select {
	case err := <-poolErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("worker pool error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := workerPool.Stop(shutdownCtx); err != nil {
			log.Error("error stopping pool", "error", err)
		}
		if scheduler != nil {
			if err := scheduler.Stop(shutdownCtx); err != nil {
				log.Error("error stopping cleanup scheduler", "error", err)
			}
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("error stopping metrics server", "error", err)
		}

		cancel()
	}

	log.Info("worker pool stopped gracefully")
	return nil
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/abdul-hamid-achik/frameset/internal/app"
	"github.com/abdul-hamid-achik/frameset/internal/config"
	"github.com/abdul-hamid-achik/frameset/internal/logger"
	"github.com/abdul-hamid-achik/frameset/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("cleanup failed", "error", err)
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

	start := time.Now()

	ctx, cancel := context.WithTimeout(logger.WithLogger(context.Background(), log), 30*time.Minute)
	defer cancel()

	components, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer components.Close()

	if components.Redis == nil && components.DB == nil {
		log.Warn("no status store configured, only archives can be expired")
	}

	stats, err := worker.RunCleanup(ctx, &worker.CleanupDependencies{
		Archives:         components.Archives,
		Tracker:          components.Tracker,
		Catalog:          components.Catalog,
		Thumbnails:       components.Thumbnails,
		ArchiveRetention: cfg.ArchiveRetention,
		FolderRetention:  cfg.FolderRetention,
	})
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	log.Info("cleanup completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"archives_removed", stats.ArchivesRemoved,
		"folders_removed", stats.FoldersRemoved,
		"jobs_forgotten", stats.JobsForgotten,
		"archive_errors", stats.ArchiveErrors,
		"folder_errors", stats.FolderErrors,
	)

	return nil
}

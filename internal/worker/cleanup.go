package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/abdul-hamid-achik/frameset/internal/catalog"
	"github.com/abdul-hamid-achik/frameset/internal/job"
	"github.com/abdul-hamid-achik/frameset/internal/logger"
	"github.com/abdul-hamid-achik/frameset/internal/metrics"
	"github.com/abdul-hamid-achik/frameset/internal/storage"
)

type CleanupDependencies struct {
	Archives *storage.ArchiveStore
	Tracker  *job.Tracker
	Catalog  *catalog.Catalog

	// Thumbnails is purged whenever a run removes output folders, so
	// previews of deleted images do not pile up. Optional.
	Thumbnails interface{ Purge() error }

	// ArchiveRetention is how long raw uploads are kept. Zero keeps them
	// forever.
	ArchiveRetention time.Duration
	// FolderRetention is how long finished jobs keep their output folder
	// and status record. Zero keeps them forever.
	FolderRetention time.Duration

	Now func() time.Time
}

type CleanupStats struct {
	ArchivesRemoved int
	FoldersRemoved  int
	JobsForgotten   int
	ArchiveErrors   int
	FolderErrors    int

	ThumbnailsPurged bool
}

func RunCleanup(ctx context.Context, deps *CleanupDependencies) (*CleanupStats, error) {
	log := logger.FromContext(ctx)
	log.Info("starting cleanup job")
	start := time.Now()

	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}

	stats := &CleanupStats{}

	jobs, err := deps.Tracker.List(ctx)
	if err != nil {
		return stats, fmt.Errorf("list jobs: %w", err)
	}

	if deps.ArchiveRetention > 0 {
		if err := cleanupArchives(ctx, deps, jobs, now().Add(-deps.ArchiveRetention), stats); err != nil {
			log.Error("failed to cleanup archives", "error", err)
		}
	}

	if deps.FolderRetention > 0 {
		cleanupFinishedJobs(ctx, deps, jobs, now().Add(-deps.FolderRetention), stats)
	}

	if deps.Thumbnails != nil && stats.FoldersRemoved > 0 {
		if err := deps.Thumbnails.Purge(); err != nil {
			log.Error("failed to purge thumbnails", "error", err)
		} else {
			stats.ThumbnailsPurged = true
		}
	}

	metrics.RecordCleanup("archive", stats.ArchivesRemoved)
	metrics.RecordCleanup("folder", stats.FoldersRemoved)

	log.Info("cleanup job completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"archives_removed", stats.ArchivesRemoved,
		"folders_removed", stats.FoldersRemoved,
		"jobs_forgotten", stats.JobsForgotten,
		"archive_errors", stats.ArchiveErrors,
		"folder_errors", stats.FolderErrors,
		"thumbnails_purged", stats.ThumbnailsPurged,
	)

	return stats, nil
}

// cleanupArchives deletes raw uploads older than cutoff unless a job that
// has not finished still needs them.
func cleanupArchives(ctx context.Context, deps *CleanupDependencies, jobs []job.Snapshot, cutoff time.Time, stats *CleanupStats) error {
	log := logger.FromContext(ctx)

	inUse := make(map[string]bool)
	for _, s := range jobs {
		if !s.Status.Terminal() {
			inUse[s.ArchiveKey] = true
		}
	}

	objects, err := deps.Archives.List(ctx)
	if err != nil {
		return fmt.Errorf("list archives: %w", err)
	}

	for _, obj := range objects {
		if inUse[obj.Key] || obj.ModTime.IsZero() || !obj.ModTime.Before(cutoff) {
			continue
		}
		if err := deps.Archives.Delete(ctx, obj.Key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Warn("failed to delete archive", "archive", obj.Key, "error", err)
			stats.ArchiveErrors++
			continue
		}
		stats.ArchivesRemoved++
	}
	return nil
}

func cleanupFinishedJobs(ctx context.Context, deps *CleanupDependencies, jobs []job.Snapshot, cutoff time.Time, stats *CleanupStats) {
	log := logger.FromContext(ctx)

	for _, s := range jobs {
		if !s.Status.Terminal() || s.FinishedAt == nil || !s.FinishedAt.Before(cutoff) {
			continue
		}

		if deps.Catalog != nil {
			err := deps.Catalog.DeleteFolder(ctx, s.ID)
			switch {
			case err == nil:
				stats.FoldersRemoved++
			case errors.Is(err, catalog.ErrNotFound):
			default:
				log.Warn("failed to delete job folder", "job_id", s.ID, "error", err)
				stats.FolderErrors++
				continue
			}
		}

		if err := deps.Tracker.Forget(ctx, s.ID); err != nil {
			log.Warn("failed to forget job", "job_id", s.ID, "error", err)
			stats.FolderErrors++
			continue
		}
		stats.JobsForgotten++
	}
}

// Scheduler runs RunCleanup on a cron schedule with a seconds field.
type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler(ctx context.Context, spec string, deps *CleanupDependencies) (*Scheduler, error) {
	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(spec, func() {
		if _, err := RunCleanup(ctx, deps); err != nil {
			logger.FromContext(ctx).Error("scheduled cleanup failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for a running cleanup until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

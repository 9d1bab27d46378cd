package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/abdul-hamid-achik/frameset/internal/apperror"
	"github.com/abdul-hamid-achik/frameset/internal/archive"
	"github.com/abdul-hamid-achik/frameset/internal/logger"
	"github.com/abdul-hamid-achik/frameset/internal/media"
	"github.com/abdul-hamid-achik/frameset/internal/metrics"
	"github.com/abdul-hamid-achik/frameset/internal/processor"
	"github.com/abdul-hamid-achik/frameset/internal/storage"
	"github.com/abdul-hamid-achik/frameset/internal/tracing"
)

const JobType = "archive_extract"

type PipelineConfig struct {
	MediaRoot        string
	StagingRoot      string
	MaxEntrySize     int64
	VideoConcurrency int
}

// Pipeline extracts one job's archive into its output directory: images are
// moved into place as they are read, videos are sampled concurrently.
type Pipeline struct {
	cfg        PipelineConfig
	tracker    *Tracker
	archives   *storage.ArchiveStore
	classifier *media.Classifier
	processors *processor.Registry
	ingestor   *archive.Ingestor
}

func NewPipeline(cfg PipelineConfig, tracker *Tracker, archives *storage.ArchiveStore, classifier *media.Classifier, processors *processor.Registry) *Pipeline {
	if cfg.VideoConcurrency < 1 {
		cfg.VideoConcurrency = 1
	}
	return &Pipeline{
		cfg:        cfg,
		tracker:    tracker,
		archives:   archives,
		classifier: classifier,
		processors: processors,
		ingestor:   archive.NewIngestor(classifier, cfg.MaxEntrySize),
	}
}

func (p *Pipeline) OutputDir(id string) string {
	return OutputDir(p.cfg.MediaRoot, id)
}

// Run processes job id to a terminal status. The returned error is non-nil
// only when the job failed; per-entry problems are counted, not returned.
func (p *Pipeline) Run(ctx context.Context, id string) (err error) {
	j, ok := p.tracker.job(id)
	if !ok {
		return ErrNotFound
	}
	snap := j.Snapshot()
	if snap.Status.Terminal() {
		return nil
	}

	ctx = logger.WithJobID(ctx, id)
	log := logger.FromContext(ctx)
	ctx, span := tracing.StartJobSpan(ctx, JobType, id)
	defer span.End()

	start := time.Now()
	log.Info("job started", "archive", snap.ArchiveName, "frame_interval", snap.Params.FrameInterval, "max_frames", snap.Params.MaxFrames)

	// A panic still leaves the job failed so sync waiters return.
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "panic", r, "stack", string(debug.Stack()))
			err = p.failWith(ctx, j, apperror.ErrInternal, fmt.Errorf("panic: %v", r))
		}
	}()

	err = p.run(ctx, j, snap)

	final := j.Snapshot()
	duration := time.Since(start)
	span.SetAttributes(
		attribute.String("job.status", string(final.Status)),
		attribute.Int64("job.entries", final.Counters.TotalEntries),
		attribute.Int64("job.errors", final.Counters.Errors),
	)
	if err != nil {
		tracing.RecordError(ctx, err)
		log.Error("job failed", "error", err, "error_code", final.ErrorCode, "duration_ms", duration.Milliseconds())
		return err
	}

	log.Info("job completed",
		"total_entries", final.Counters.TotalEntries,
		"images", final.Counters.ImagesExtracted,
		"videos", final.Counters.VideosProcessed,
		"frames", final.Counters.FramesExtracted,
		"errors", final.Counters.Errors,
		"duration_ms", duration.Milliseconds(),
	)
	return nil
}

func (p *Pipeline) run(ctx context.Context, j *Job, snap Snapshot) error {
	outDir := snap.OutputDirectory
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return p.failWith(ctx, j, apperror.ErrDestinationUnwritable, err)
	}

	stage := filepath.Join(p.cfg.StagingRoot, snap.ID)
	defer func() { _ = os.RemoveAll(stage) }()

	archivePath, release, err := p.archives.Open(ctx, snap.ArchiveKey, stage)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return p.failWith(ctx, j, apperror.ErrNotFound, err)
		}
		return p.failWith(ctx, j, apperror.ErrInternal, err)
	}
	defer release()

	classifier := p.classifier.Narrow(snap.Params.AllowedExtensions())
	opts := snap.Params.Options()

	// Video tasks never return errors: failures are isolated per file and
	// counted. The limit also throttles ingestion when videos back up.
	var videos errgroup.Group
	videos.SetLimit(p.cfg.VideoConcurrency)

	ingestCtx, ingestSpan := tracing.StartStageSpan(ctx, "ingest", attribute.String("archive", snap.ArchiveName))
	res, ingestErr := p.ingestor.Ingest(ingestCtx, archivePath, filepath.Join(stage, "entries"), classifier,
		func(ctx context.Context, ev archive.Event) error {
			p.tracker.markExtracting(ctx, j)
			p.tracker.record(ctx, j, Counters{TotalEntries: 1})

			switch ev.Kind {
			case media.KindImage:
				p.storeImage(ctx, j, ev, opts, outDir)
			case media.KindVideo:
				videos.Go(func() error {
					defer func() {
						if r := recover(); r != nil {
							p.entryFailed(ctx, j, logger.FromContext(ctx).With("entry", ev.RelPath), ev, fmt.Errorf("panic: %v", r))
						}
					}()
					p.sampleVideo(ctx, j, ev, opts, outDir)
					return nil
				})
			default:
				metrics.RecordArchiveEntry("unsupported")
				logger.FromContext(ctx).Debug("unsupported entry skipped", "entry", ev.RelPath)
				removeStaged(ev.Path)
			}
			return nil
		})
	ingestSpan.End()
	_ = videos.Wait()

	if res != nil {
		for _, skipped := range res.Skipped {
			metrics.RecordArchiveEntry("error")
			logger.FromContext(ctx).Warn("archive entry rejected", "entry", skipped.Name, "error", skipped.Err)
			p.tracker.record(ctx, j, Counters{TotalEntries: 1, Errors: 1})
		}
	}

	return p.finalize(ctx, j, outDir, ingestErr)
}

func (p *Pipeline) finalize(ctx context.Context, j *Job, outDir string, ingestErr error) error {
	p.tracker.markExtracting(ctx, j)

	switch {
	case ingestErr == nil:
	case errors.Is(ingestErr, archive.ErrCorrupt):
		return p.failWith(ctx, j, apperror.ErrCorruptArchive, ingestErr)
	case errors.Is(ingestErr, archive.ErrWriteFailed):
		return p.failWith(ctx, j, apperror.ErrDestinationUnwritable, ingestErr)
	case errors.Is(ingestErr, context.DeadlineExceeded), errors.Is(ingestErr, context.Canceled):
		return p.failWith(ctx, j, apperror.ErrServiceUnavailable, ingestErr)
	default:
		return p.failWith(ctx, j, apperror.ErrInternal, ingestErr)
	}

	if info, err := os.Stat(outDir); err != nil || !info.IsDir() {
		return p.failWith(ctx, j, apperror.ErrDestinationUnwritable, fmt.Errorf("output directory %s removed during extraction", outDir))
	}
	if err := ctx.Err(); err != nil {
		return p.failWith(ctx, j, apperror.ErrServiceUnavailable, err)
	}

	p.tracker.complete(ctx, j)
	return nil
}

func (p *Pipeline) failWith(ctx context.Context, j *Job, appErr *apperror.Error, cause error) error {
	p.tracker.fail(ctx, j, appErr.Code, cause.Error())
	return apperror.Wrap(cause, appErr)
}

func (p *Pipeline) storeImage(ctx context.Context, j *Job, ev archive.Event, opts *processor.Options, outDir string) {
	log := logger.FromContext(ctx).With("entry", ev.RelPath)

	proc, err := p.processors.ForKind(media.KindImage)
	if err != nil {
		p.entryFailed(ctx, j, log, ev, err)
		return
	}
	res, err := proc.Process(ctx, opts, &processor.Input{Path: ev.Path, RelPath: ev.RelPath, OutputDir: outDir})
	if err != nil {
		p.entryFailed(ctx, j, log, ev, err)
		return
	}

	metrics.RecordArchiveEntry("image")
	p.tracker.record(ctx, j, Counters{ImagesExtracted: int64(len(res.Files))}, res.Files...)
	log.Debug("image stored", "size", ev.Size, "width", res.Metadata.Width, "height", res.Metadata.Height)
}

func (p *Pipeline) sampleVideo(ctx context.Context, j *Job, ev archive.Event, opts *processor.Options, outDir string) {
	defer removeStaged(ev.Path)
	log := logger.FromContext(ctx).With("entry", ev.RelPath)

	proc, err := p.processors.ForKind(media.KindVideo)
	if err != nil {
		p.entryFailed(ctx, j, log, ev, err)
		return
	}

	ctx, span := tracing.StartStageSpan(ctx, "sample", attribute.String("video", ev.RelPath))
	defer span.End()

	start := time.Now()
	res, err := proc.Process(ctx, opts, &processor.Input{Path: ev.Path, RelPath: ev.RelPath, OutputDir: outDir})
	if err != nil {
		metrics.RecordVideoDecodeError()
		tracing.RecordError(ctx, err)
		p.entryFailed(ctx, j, log, ev, apperror.Wrap(err, apperror.ErrVideoDecode))
		return
	}

	metrics.RecordArchiveEntry("video")
	metrics.RecordFrames(len(res.Files))
	metrics.RecordJobStage(JobType, "sample", time.Since(start).Seconds())
	p.tracker.record(ctx, j, Counters{
		VideosProcessed: 1,
		FramesExtracted: int64(len(res.Files)),
		Errors:          int64(res.Failed),
	}, res.Files...)
	p.tracker.checkpoint(ctx, j)

	log.Info("video sampled",
		"frames", len(res.Files),
		"failed_frames", res.Failed,
		"duration_s", res.Metadata.Duration,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (p *Pipeline) entryFailed(ctx context.Context, j *Job, log *slog.Logger, ev archive.Event, err error) {
	metrics.RecordArchiveEntry("error")
	log.Warn("entry not processed", "kind", ev.Kind, "error", err)
	p.tracker.record(ctx, j, Counters{Errors: 1})
	removeStaged(ev.Path)
}

func removeStaged(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/abdul-hamid-achik/frameset/internal/apperror"
	"github.com/abdul-hamid-achik/frameset/internal/logger"
	"github.com/abdul-hamid-achik/frameset/internal/metrics"
	"github.com/abdul-hamid-achik/frameset/internal/storage"
)

// OutputDir is the directory under mediaRoot that holds job id's files.
func OutputDir(mediaRoot, id string) string {
	return filepath.Join(mediaRoot, id)
}

// Upload is one archive handed to Accept. Size may be -1 when the body is
// streamed and its length is unknown.
type Upload struct {
	Name   string
	Body   io.Reader
	Size   int64
	Params Params
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type ServiceOption func(*Service)

// WithRemoteDispatch marks the dispatcher as handing jobs to another
// process; accepted jobs are then answered from the status store only.
func WithRemoteDispatch() ServiceOption {
	return func(s *Service) {
		s.remote = true
	}
}

// Service accepts uploads: it retains the archive, registers the job and
// hands it to the dispatcher.
type Service struct {
	tracker    *Tracker
	archives   *storage.ArchiveStore
	dispatcher Dispatcher
	mediaRoot  string
	remote     bool
}

func NewService(tracker *Tracker, archives *storage.ArchiveStore, dispatcher Dispatcher, mediaRoot string, opts ...ServiceOption) *Service {
	s := &Service{
		tracker:    tracker,
		archives:   archives,
		dispatcher: dispatcher,
		mediaRoot:  mediaRoot,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Tracker() *Tracker {
	return s.tracker
}

// Accept stores the archive and queues its extraction. The returned snapshot
// is still pending unless dispatching failed.
func (s *Service) Accept(ctx context.Context, up Upload) (Snapshot, error) {
	log := logger.FromContext(ctx)

	if err := up.Params.Validate(); err != nil {
		return Snapshot{}, err
	}

	body := &countingReader{r: up.Body}
	key, err := s.archives.Save(ctx, up.Name, body, up.Size)
	if err != nil {
		metrics.RecordArchiveUpload("error", body.n)
		return Snapshot{}, fmt.Errorf("retain archive: %w", err)
	}
	metrics.RecordArchiveUpload("success", body.n)

	j := s.tracker.Create(ctx, up.Name, key, up.Params, func(id string) string {
		return OutputDir(s.mediaRoot, id)
	})
	snap := j.Snapshot()
	log.Info("upload accepted", "job_id", snap.ID, "archive", up.Name, "archive_key", key, "size", body.n)

	if err := s.dispatcher.Dispatch(ctx, snap); err != nil {
		code := apperror.ErrInternal.Code
		if errors.Is(err, ErrQueueFull) {
			code = apperror.ErrQueueFull.Code
		}
		s.tracker.fail(ctx, j, code, err.Error())
		log.Warn("job dispatch failed", "job_id", snap.ID, "error", err)
		return j.Snapshot(), err
	}

	if s.remote {
		s.tracker.Release(snap.ID)
	}
	return snap, nil
}

func (s *Service) Wait(ctx context.Context, id string) (Snapshot, error) {
	return s.tracker.Wait(ctx, id)
}

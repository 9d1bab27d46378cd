package job

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/frameset/internal/logger"
)

// StatusStore persists job snapshots so that other processes can answer
// status queries. Get returns ErrNotFound for unknown ids.
type StatusStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Get(ctx context.Context, id string) (*Snapshot, error)
	List(ctx context.Context, limit int) ([]Snapshot, error)
	Delete(ctx context.Context, id string) error
}

// Job is the live state of one upload. All fields are guarded by mu and are
// only reached through the methods below.
type Job struct {
	mu   sync.Mutex
	snap Snapshot
	done chan struct{}
}

func (j *Job) ID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap.ID
}

func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap.clone()
}

// Done is closed when the job reaches a terminal status.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// begin moves a pending job to extracting. It reports whether the status
// changed.
func (j *Job) begin(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.snap.Status != StatusPending {
		return false
	}
	j.snap.Status = StatusExtracting
	j.snap.StartedAt = &now
	return true
}

func (j *Job) add(d Counters, files ...string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.snap.Counters.add(d)
	j.snap.Files = append(j.snap.Files, files...)
}

// finish records the terminal status once; later calls are ignored.
func (j *Job) finish(now time.Time, status Status, code, msg string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.snap.Status.Terminal() {
		return false
	}
	if j.snap.StartedAt == nil {
		j.snap.StartedAt = &now
	}
	j.snap.Status = status
	j.snap.FinishedAt = &now
	j.snap.ErrorCode = code
	j.snap.Error = msg
	close(j.done)
	return true
}

// Notifier is told about every job that reaches a terminal status in this
// process. JobFinished must not block for long.
type Notifier interface {
	JobFinished(ctx context.Context, snap Snapshot)
}

type TrackerOption func(*Tracker)

func WithStatusStore(s StatusStore) TrackerOption {
	return func(t *Tracker) {
		t.store = s
	}
}

func WithNotifier(n Notifier) TrackerOption {
	return func(t *Tracker) {
		t.notifiers = append(t.notifiers, n)
	}
}

func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// Tracker owns every job known to this process. Status reads take the map
// lock only long enough to find the job, so polling never waits on workers.
type Tracker struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	store StatusStore
	now   func() time.Time

	notifiers []Notifier

	pollInterval time.Duration
}

func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		jobs:         make(map[string]*Job),
		now:          time.Now,
		pollInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Create registers a new pending job. outputDir is derived from the new id by
// the caller-supplied function so ids and directories never disagree.
func (t *Tracker) Create(ctx context.Context, archiveName, archiveKey string, params Params, outputDir func(id string) string) *Job {
	id := uuid.New().String()
	j := &Job{
		snap: Snapshot{
			ID:              id,
			ArchiveName:     archiveName,
			ArchiveKey:      archiveKey,
			Status:          StatusPending,
			CreatedAt:       t.now().UTC(),
			OutputDirectory: outputDir(id),
			Params:          params,
		},
		done: make(chan struct{}),
	}

	t.mu.Lock()
	t.jobs[id] = j
	t.mu.Unlock()

	t.persist(ctx, j)
	return j
}

// Adopt registers a job created by another process, typically one received
// from the distributed queue. An already known id returns the existing job.
func (t *Tracker) Adopt(ctx context.Context, snap Snapshot) *Job {
	t.mu.Lock()
	if existing, ok := t.jobs[snap.ID]; ok {
		t.mu.Unlock()
		return existing
	}
	j := &Job{snap: snap.clone(), done: make(chan struct{})}
	if snap.Status.Terminal() {
		close(j.done)
	}
	t.jobs[snap.ID] = j
	t.mu.Unlock()
	return j
}

func (t *Tracker) job(id string) (*Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[id]
	return j, ok
}

// Get returns the current state of id from memory, falling back to the
// status store for jobs owned by other processes.
func (t *Tracker) Get(ctx context.Context, id string) (Snapshot, error) {
	if j, ok := t.job(id); ok {
		return j.Snapshot(), nil
	}
	if t.store == nil {
		return Snapshot{}, ErrNotFound
	}
	snap, err := t.store.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return *snap, nil
}

// List returns all known jobs, newest first.
func (t *Tracker) List(ctx context.Context) ([]Snapshot, error) {
	t.mu.RLock()
	jobs := make([]*Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		jobs = append(jobs, j)
	}
	t.mu.RUnlock()

	seen := make(map[string]bool, len(jobs))
	out := make([]Snapshot, 0, len(jobs))
	for _, j := range jobs {
		s := j.Snapshot()
		seen[s.ID] = true
		out = append(out, s)
	}

	if t.store != nil {
		stored, err := t.store.List(ctx, 0)
		if err != nil {
			return nil, err
		}
		for _, s := range stored {
			if !seen[s.ID] {
				out = append(out, s)
			}
		}
	}

	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out, nil
}

// Wait blocks until id reaches a terminal status or ctx ends. Jobs owned by
// another process are polled through the status store.
func (t *Tracker) Wait(ctx context.Context, id string) (Snapshot, error) {
	if j, ok := t.job(id); ok {
		select {
		case <-j.Done():
			return j.Snapshot(), nil
		case <-ctx.Done():
			return j.Snapshot(), ctx.Err()
		}
	}

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		snap, err := t.Get(ctx, id)
		if err != nil {
			return Snapshot{}, err
		}
		if snap.Status.Terminal() {
			return snap, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// Release drops a job from memory; the status store keeps answering for it.
func (t *Tracker) Release(id string) {
	t.mu.Lock()
	delete(t.jobs, id)
	t.mu.Unlock()
}

// Forget removes every trace of id. Work still in flight for it keeps
// running but is no longer persisted.
func (t *Tracker) Forget(ctx context.Context, id string) error {
	t.Release(id)
	if t.store == nil {
		return nil
	}
	if err := t.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func (t *Tracker) markExtracting(ctx context.Context, j *Job) {
	if j.begin(t.now().UTC()) {
		t.persist(ctx, j)
	}
}

func (t *Tracker) record(ctx context.Context, j *Job, d Counters, files ...string) {
	j.add(d, files...)
}

func (t *Tracker) complete(ctx context.Context, j *Job) {
	if j.finish(t.now().UTC(), StatusCompleted, "", "") {
		t.persist(ctx, j)
		t.notify(ctx, j)
	}
}

func (t *Tracker) fail(ctx context.Context, j *Job, code, msg string) {
	if j.finish(t.now().UTC(), StatusFailed, code, msg) {
		t.persist(ctx, j)
		t.notify(ctx, j)
	}
}

// checkpoint saves the current counters for remote pollers.
func (t *Tracker) checkpoint(ctx context.Context, j *Job) {
	t.persist(ctx, j)
}

// persist saves a snapshot without holding any tracker or job lock. Jobs
// that were forgotten are not written back.
func (t *Tracker) persist(ctx context.Context, j *Job) {
	if t.store == nil {
		return
	}
	snap := j.Snapshot()
	if cur, ok := t.job(snap.ID); !ok || cur != j {
		return
	}
	if err := t.store.Save(context.WithoutCancel(ctx), snap); err != nil {
		logger.FromContext(ctx).Warn("failed to persist job status", "job_id", snap.ID, "status", snap.Status, "error", err)
	}
}

func (t *Tracker) notify(ctx context.Context, j *Job) {
	if len(t.notifiers) == 0 {
		return
	}
	snap := j.Snapshot()
	for _, n := range t.notifiers {
		n.JobFinished(context.WithoutCancel(ctx), snap)
	}
}

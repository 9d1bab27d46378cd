package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/frameset/internal/logger"
	"github.com/abdul-hamid-achik/frameset/internal/metrics"
)

const localQueue = "local"

// Runner processes a single job to completion.
type Runner interface {
	Run(ctx context.Context, id string) error
}

// Dispatcher hands an accepted job to whatever executes it.
type Dispatcher interface {
	Dispatch(ctx context.Context, snap Snapshot) error
}

type PoolConfig struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration
}

// Pool runs jobs on a fixed set of goroutines fed by a bounded channel.
// Submit never blocks; a full queue is reported to the caller.
type Pool struct {
	runner    Runner
	cfg       PoolConfig
	queue     chan string
	collector *metrics.JobCollector

	mu      sync.RWMutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

var _ Dispatcher = (*Pool)(nil)

func NewPool(runner Runner, cfg PoolConfig) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	return &Pool{
		runner:    runner,
		cfg:       cfg,
		queue:     make(chan string, cfg.QueueSize),
		collector: metrics.NewJobCollector(),
	}
}

func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	metrics.SetWorkerPoolSize(p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
}

func (p *Pool) work(ctx context.Context, worker int) {
	defer p.wg.Done()
	log := logger.FromContext(ctx).With("worker", worker)

	for id := range p.queue {
		metrics.SetJobsInQueue(localQueue, int64(len(p.queue)))
		p.runOne(ctx, log, id)
	}
}

func (p *Pool) runOne(ctx context.Context, log *slog.Logger, id string) {
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	p.collector.JobStarted(JobType, localQueue)
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "job_id", id, "panic", r)
			p.collector.JobFailed(JobType, localQueue, time.Since(start))
		}
	}()

	if err := p.runner.Run(ctx, id); err != nil {
		p.collector.JobFailed(JobType, localQueue, time.Since(start))
		return
	}
	p.collector.JobCompleted(JobType, localQueue, time.Since(start))
}

// Submit queues id for processing.
func (p *Pool) Submit(id string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.queue <- id:
		metrics.RecordJobEnqueued(JobType)
		metrics.SetJobsInQueue(localQueue, int64(len(p.queue)))
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) Dispatch(ctx context.Context, snap Snapshot) error {
	return p.Submit(snap.ID)
}

// Stop stops accepting jobs and waits for queued ones to drain. If ctx ends
// first, running jobs are cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	cancel := p.cancel
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if cancel != nil {
			cancel()
		}
		return nil
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		<-done
		return ctx.Err()
	}
}

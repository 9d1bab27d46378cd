package worker

import (
	"context"
	"fmt"

	queuejob "github.com/abdul-hamid-achik/job-queue/pkg/job"

	"github.com/abdul-hamid-achik/frameset/internal/job"
	"github.com/abdul-hamid-achik/frameset/internal/logger"
	"github.com/abdul-hamid-achik/frameset/internal/metrics"
	"github.com/abdul-hamid-achik/frameset/internal/tracing"
)

type Broker interface {
	Enqueue(ctx context.Context, j *queuejob.Job) error
}

// Enqueuer hands extraction jobs to worker processes through the broker.
// It satisfies job.Dispatcher.
type Enqueuer struct {
	broker Broker
}

func NewEnqueuer(b Broker) *Enqueuer {
	return &Enqueuer{broker: b}
}

func (e *Enqueuer) Dispatch(ctx context.Context, snap job.Snapshot) error {
	ctx, span := tracing.StartJobEnqueueSpan(ctx, job.JobType)
	defer span.End()

	qj, err := queuejob.New(job.JobType, NewExtractPayload(ctx, snap))
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("create queue job: %w", err)
	}

	if err := e.broker.Enqueue(ctx, qj); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("enqueue job: %w", err)
	}

	metrics.RecordJobEnqueued(job.JobType)
	logger.FromContext(ctx).Info("job enqueued", "job_id", snap.ID, "queue_job_id", qj.ID)
	return nil
}

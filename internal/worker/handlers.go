// Package worker runs extraction jobs received from the job queue and the
// periodic retention cleanup.
package worker

import (
	"context"
	"fmt"
	"time"

	queuejob "github.com/abdul-hamid-achik/job-queue/pkg/job"
	"github.com/abdul-hamid-achik/job-queue/pkg/middleware"

	"github.com/abdul-hamid-achik/frameset/internal/job"
	"github.com/abdul-hamid-achik/frameset/internal/logger"
	"github.com/abdul-hamid-achik/frameset/internal/tracing"
)

type Dependencies struct {
	Tracker  *job.Tracker
	Pipeline *job.Pipeline
}

// ExtractHandler runs one archive extraction. Every failure is permanent:
// the job's failed status is already recorded and a redelivery would only
// repeat it.
func ExtractHandler(deps *Dependencies) func(context.Context, *queuejob.Job) error {
	return func(ctx context.Context, j *queuejob.Job) error {
		log := logger.FromContext(ctx).With("queue_job_id", j.ID, "job_type", job.JobType)
		start := time.Now()

		var payload ExtractPayload
		if err := j.UnmarshalPayload(&payload); err != nil {
			log.Error("invalid payload", "error", err)
			return middleware.Permanent(fmt.Errorf("invalid payload: %w", err))
		}
		if err := payload.Validate(); err != nil {
			log.Error("invalid payload", "error", err)
			return middleware.Permanent(err)
		}

		id := payload.Job.ID
		log = log.With("job_id", id)
		ctx = logger.WithLogger(tracing.ExtractTraceContext(ctx, payload.Trace), log)

		if cur, err := deps.Tracker.Get(ctx, id); err == nil && cur.Status.Terminal() {
			log.Info("job already finished, skipping redelivery", "status", cur.Status)
			return nil
		}

		deps.Tracker.Adopt(ctx, payload.Job)
		defer deps.Tracker.Release(id)

		if err := deps.Pipeline.Run(ctx, id); err != nil {
			return middleware.Permanent(fmt.Errorf("extract %s: %w", id, err))
		}

		log.Info("queue job done", "duration_ms", time.Since(start).Milliseconds())
		return nil
	}
}

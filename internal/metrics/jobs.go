package metrics

import (
	"time"
)

// Outcome labels on jobs_processed_total. They match the job statuses a
// client sees from GET /jobs/{id}.
const (
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobRetrying  = "retrying"
)

// JobCollector is the single writer of jobs_processed_total and the "total"
// processing duration. The local pool calls it directly; cmd/worker installs
// it through the job-queue metrics middleware, so queue names the dispatch
// path ("local" or the Redis stream).
type JobCollector struct{}

func NewJobCollector() *JobCollector {
	return &JobCollector{}
}

func (c *JobCollector) JobStarted(jobType, queue string) {
	WorkerPoolActiveJobs.Inc()
}

func (c *JobCollector) JobCompleted(jobType, queue string, duration time.Duration) {
	c.finish(jobType, queue, JobCompleted, duration)
}

func (c *JobCollector) JobFailed(jobType, queue string, duration time.Duration) {
	c.finish(jobType, queue, JobFailed, duration)
}

// JobRetrying counts a queued job handed back for another attempt. Only the
// final attempt observes a duration.
func (c *JobCollector) JobRetrying(jobType, queue string, attempt int) {
	JobsProcessedTotal.WithLabelValues(jobType, JobRetrying, queue).Inc()
}

func (c *JobCollector) finish(jobType, queue, outcome string, duration time.Duration) {
	WorkerPoolActiveJobs.Dec()
	JobsProcessedTotal.WithLabelValues(jobType, outcome, queue).Inc()
	JobsProcessingDuration.WithLabelValues(jobType, "total").Observe(duration.Seconds())
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
		[]string{"method"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "route", "status"},
	)

	ArchiveUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_uploads_total",
			Help: "Total number of archive uploads",
		},
		[]string{"status"},
	)

	ArchiveUploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "archive_upload_bytes",
			Help:    "Size of uploaded archives in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 12),
		},
	)

	ArchiveEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_entries_total",
			Help: "Archive entries seen during ingestion by result",
		},
		[]string{"result"},
	)

	FramesExtractedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "frames_extracted_total",
			Help: "Total number of video frames written",
		},
	)

	VideoDecodeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "video_decode_errors_total",
			Help: "Videos that could not be opened for frame sampling",
		},
	)

	CatalogDeletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_deletions_total",
			Help: "Total number of catalog deletions",
		},
		[]string{"target", "status"},
	)

	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_operation_duration_seconds",
			Help:    "Duration of storage operations in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	StorageBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_bytes_total",
			Help: "Total bytes transferred to/from storage",
		},
		[]string{"operation"},
	)

	JobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"type"},
	)

	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Jobs finished or retried, by outcome and dispatch queue",
		},
		[]string{"type", "status", "queue"},
	)

	JobsProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobs_processing_duration_seconds",
			Help:    "Duration of job processing in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900},
		},
		[]string{"type", "stage"},
	)

	JobsInQueue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobs_in_queue",
			Help: "Number of jobs currently in queue",
		},
		[]string{"queue"},
	)

	WorkerPoolActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_pool_active_jobs",
			Help: "Number of jobs currently being processed by workers",
		},
	)

	WorkerPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_pool_size",
			Help: "Size of the worker pool",
		},
	)

	CleanupRemovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cleanup_removed_total",
			Help: "Items removed by retention cleanup",
		},
		[]string{"kind"},
	)

	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Job event deliveries by outcome",
		},
		[]string{"event", "result"},
	)

	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application information",
		},
		[]string{"version", "environment", "service"},
	)

	AppUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_up",
			Help: "Application is up and running",
		},
	)
)

func RecordArchiveUpload(status string, sizeBytes int64) {
	ArchiveUploadsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		ArchiveUploadBytes.Observe(float64(sizeBytes))
	}
}

// RecordArchiveEntry counts one ingested entry. result is one of image,
// video, unsupported or error.
func RecordArchiveEntry(result string) {
	ArchiveEntriesTotal.WithLabelValues(result).Inc()
}

func RecordFrames(n int) {
	FramesExtractedTotal.Add(float64(n))
}

func RecordVideoDecodeError() {
	VideoDecodeErrorsTotal.Inc()
}

func RecordCatalogDeletion(target, status string) {
	CatalogDeletionsTotal.WithLabelValues(target, status).Inc()
}

func RecordJobEnqueued(jobType string) {
	JobsEnqueuedTotal.WithLabelValues(jobType).Inc()
}

func RecordJobStage(jobType, stage string, durationSeconds float64) {
	JobsProcessingDuration.WithLabelValues(jobType, stage).Observe(durationSeconds)
}

func RecordCleanup(kind string, n int) {
	CleanupRemovedTotal.WithLabelValues(kind).Add(float64(n))
}

// RecordWebhookDelivery counts one delivery. result is delivered, failed
// or skipped.
func RecordWebhookDelivery(event, result string) {
	WebhookDeliveriesTotal.WithLabelValues(event, result).Inc()
}

func SetAppInfo(version, environment, service string) {
	AppInfo.WithLabelValues(version, environment, service).Set(1)
	AppUp.Set(1)
}

func SetWorkerPoolSize(size int) {
	WorkerPoolSize.Set(float64(size))
}

func SetJobsInQueue(queue string, count int64) {
	JobsInQueue.WithLabelValues(queue).Set(float64(count))
}

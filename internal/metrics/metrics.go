package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value constants to prevent typos
const (
	// Queue types
	QueueTypeImportJob = "import_job"

	// Job results
	ResultSuccess = "success"
	ResultRetry   = "retry"
	ResultFailed  = "failed"

	// Worker invocation outcomes
	OutcomeJobsClaimed = "jobs_claimed"
	OutcomeIdle        = "idle"
	OutcomeError       = "error"

	// HTTP endpoints
	EndpointProcessImportJobs = "process_import_jobs"
	EndpointUploads           = "uploads"
	EndpointGetJob            = "get_job"
	EndpointHealth            = "health"

	// Blob store operations
	BlobOpGet = "get"
	BlobOpPut = "put"

	// Database operations
	DBOpEnqueueImportJob     = "enqueue_import_job"
	DBOpClaimImportJobs      = "claim_import_jobs"
	DBOpCompleteImportJob    = "complete_import_job"
	DBOpRetryImportJob       = "retry_import_job"
	DBOpReapImportJobs       = "reap_import_jobs"
	DBOpGetImportJob         = "get_import_job"
	DBOpCountImportJobs      = "count_import_jobs"
	DBOpCreateSourceFile     = "create_source_file"
	DBOpGetSourceFile        = "get_source_file"
	DBOpSetSourceFileStatus  = "set_source_file_status"
	DBOpEnsureWorkout        = "ensure_workout"
	DBOpUpdateWorkoutMetrics = "update_workout_metrics"
	DBOpGetWorkout           = "get_workout"
	DBOpUpsertPreviewStream  = "upsert_preview_stream"
	DBOpGetPreviewStream     = "get_preview_stream"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"endpoint", "status_code"},
	)
)

// Queue Metrics
var (
	QueueDepthTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth_total",
			Help: "Total number of items in queue (all states)",
		},
		[]string{"queue_type"},
	)

	QueueDepthReady = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth_ready",
			Help: "Number of items claimable right now",
		},
		[]string{"queue_type"},
	)

	QueueDepthByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth_by_status",
			Help: "Number of items in queue per status",
		},
		[]string{"queue_type", "status"},
	)

	QueueEnqueueTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_enqueue_total",
			Help: "Total number of items enqueued",
		},
		[]string{"queue_type"},
	)

	QueueDequeueTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_dequeue_total",
			Help: "Total number of items dequeued with outcome",
		},
		[]string{"queue_type", "result"},
	)

	QueueProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_processing_duration_seconds",
			Help:    "Time spent processing queue items",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"queue_type", "result"},
	)

	QueueItemAge = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_item_age_seconds",
			Help:    "Time from scheduled_at to claim",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600, 7200},
		},
		[]string{"queue_type"},
	)

	QueueRetryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_retry_total",
			Help: "Total number of retry attempts",
		},
		[]string{"queue_type", "attempt"},
	)

	QueueReapedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_reaped_total",
			Help: "Total number of stale running items released by the reaper",
		},
		[]string{"queue_type"},
	)
)

// Worker Metrics
var (
	WorkerPollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_poll_cycles_total",
			Help: "Total number of worker invocations by outcome",
		},
		[]string{"outcome"},
	)

	WorkerActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_active",
			Help: "Number of worker invocations currently running",
		},
	)
)

// Blob Store Metrics
var (
	BlobOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blob_operation_duration_seconds",
			Help:    "Blob store operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"backend", "operation"},
	)

	BlobOperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blob_operation_errors_total",
			Help: "Total number of blob store operation errors",
		},
		[]string{"backend", "operation"},
	)
)

// Database Metrics
var (
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Database operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	DBOperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)
)

// Business Metrics
var (
	WorkoutsImportedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workouts_imported_total",
			Help: "Total number of workouts imported",
		},
		[]string{"format", "sport"},
	)

	DecodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "decode_duration_seconds",
			Help:    "Time spent decoding an uploaded file",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"format"},
	)

	PreviewPointsCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "preview_points_count",
			Help:    "Number of points stored per preview stream",
			Buckets: []float64{0, 10, 50, 100, 250, 500, 1000, 1500},
		},
	)

	PreviewUpsertFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "preview_upsert_failures_total",
			Help: "Total number of preview stream writes that failed and were skipped",
		},
	)
)

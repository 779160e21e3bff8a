// Package metrics provides Prometheus metrics for the arena contest service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the arena service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Claim protocol metrics - the heart of the contest
	claimsAttempted       prometheus.Counter
	claimsWon             prometheus.Counter
	claimsRejected        *prometheus.CounterVec
	claimRetries          prometheus.Counter
	claimRetriesExhausted prometheus.Counter

	// Quota cache metrics
	quotaCacheHits   prometheus.Counter
	quotaCacheMisses prometheus.Counter
	quotaCacheSize   prometheus.Gauge

	// Issue store metrics
	storeCommits             prometheus.Counter
	storePreconditionFailed  prometheus.Counter
	storeUnavailable         prometheus.Counter
	storeUpdateLatency       prometheus.Histogram

	// Sweeper and release metrics
	sweepRuns     prometheus.Counter
	sweepDuration prometheus.Histogram
	issuesExpired prometheus.Counter
	penaltyPoints prometheus.Counter
	awardPoints   prometheus.Counter

	// Reconciliation metrics
	reconcileConfirmed    prometheus.Counter
	reconcileRollbacks    prometheus.Counter
	feedErrors            prometheus.Counter
	feedLocalEchoDropped  prometheus.Counter

	// Contest scale metrics
	registeredTeams prometheus.Gauge
	trackedIssues   prometheus.Gauge

	// Queue metrics
	queueCapacity      prometheus.Gauge
	queueSize          prometheus.Gauge
	queueEnqueueRate   prometheus.Counter
	queueDequeueRate   prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Worker metrics
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// HTTP performance metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error metrics
	errorRateByType     *prometheus.CounterVec
	errorRateByEndpoint *prometheus.CounterVec
	errorLatency        *prometheus.HistogramVec

	// System performance metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "arena",
		subsystem:        "contest",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	// Claim protocol metrics
	m.claimsAttempted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "claims_attempted_total",
		Help:      "Total number of claim attempts received",
	})

	m.claimsWon = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "claims_won_total",
		Help:      "Total number of claims that transitioned an issue open->occupied",
	})

	m.claimsRejected = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "claims_rejected_total",
			Help:      "Total number of terminally rejected claims by reason",
		},
		[]string{"reason"},
	)

	m.claimRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "claim_retries_total",
		Help:      "Total number of transient-failure claim retries",
	})

	m.claimRetriesExhausted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "claim_retries_exhausted_total",
		Help:      "Total number of claims that exhausted the retry budget",
	})

	// Quota cache metrics
	m.quotaCacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "quota_cache_hits_total",
		Help:      "Total number of fresh quota cache hits",
	})

	m.quotaCacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "quota_cache_misses_total",
		Help:      "Total number of quota cache misses or expired entries",
	})

	m.quotaCacheSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "quota_cache_size",
		Help:      "Current number of quota cache entries",
	})

	// Issue store metrics
	m.storeCommits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_commits_total",
		Help:      "Total number of committed issue store mutations",
	})

	m.storePreconditionFailed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_precondition_failed_total",
		Help:      "Total number of conditional updates rejected by their precondition",
	})

	m.storeUnavailable = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_unavailable_total",
		Help:      "Total number of transient store failures",
	})

	m.storeUpdateLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_update_latency_milliseconds",
		Help:      "Conditional update latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// Sweeper and release metrics
	m.sweepRuns = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sweep_runs_total",
		Help:      "Total number of expiry sweep passes",
	})

	m.sweepDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "sweep_duration_milliseconds",
		Help:      "Sweep pass duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.issuesExpired = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "issues_expired_total",
		Help:      "Total number of overdue issues forcibly released",
	})

	m.penaltyPoints = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "penalty_points_total",
		Help:      "Total penalty points deducted for expired issues",
	})

	m.awardPoints = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "award_points_total",
		Help:      "Total points awarded for merged pull requests",
	})

	// Reconciliation metrics
	m.reconcileConfirmed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reconcile_confirmed_total",
		Help:      "Total number of optimistic claims confirmed",
	})

	m.reconcileRollbacks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "reconcile_rollbacks_total",
		Help:      "Total number of optimistic claims rolled back",
	})

	m.feedErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feed_errors_total",
		Help:      "Total number of change feed stream failures",
	})

	m.feedLocalEchoDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "feed_local_echo_dropped_total",
		Help:      "Total number of local-cache feed snapshots ignored",
	})

	// Contest scale metrics
	m.registeredTeams = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "registered_teams",
		Help:      "Number of registered teams",
	})

	m.trackedIssues = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tracked_issues",
		Help:      "Number of issues in the store",
	})

	// Queue metrics
	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Maximum expiry job queue capacity",
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current size of the expiry job queue",
	})

	m.queueEnqueueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_total",
		Help:      "Total number of expiry jobs enqueued",
	})

	m.queueDequeueRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_dequeue_total",
		Help:      "Total number of expiry jobs dequeued",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_errors_total",
		Help:      "Total number of enqueue errors",
	})

	// Worker metrics
	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Number of release workers",
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_processing_latency_milliseconds",
		Help:      "Release worker job latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.workerErrorRate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_errors_total",
		Help:      "Total number of release worker errors",
	})

	// HTTP performance metrics
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// Error metrics
	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_type_total",
			Help:      "Total number of errors by type",
		},
		[]string{"error_type", "severity"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_endpoint_total",
			Help:      "Total number of errors by endpoint",
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.errorLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "error_latency_milliseconds",
			Help:      "Latency of operations that resulted in errors",
			Buckets:   m.histogramBuckets,
		},
		[]string{"component", "error_type"},
	)

	// System performance metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_time_milliseconds",
		Help:      "GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// Claim protocol helpers.

// RecordClaimAttempt increments the claim attempts counter.
func RecordClaimAttempt() {
	globalManager.claimsAttempted.Inc()
}

// RecordClaimWon increments the successful claims counter.
func RecordClaimWon() {
	globalManager.claimsWon.Inc()
}

// RecordClaimRejected increments the rejected claims counter for a reason.
func RecordClaimRejected(reason string) {
	globalManager.claimsRejected.WithLabelValues(reason).Inc()
}

// RecordClaimRetry increments the claim retry counter.
func RecordClaimRetry() {
	globalManager.claimRetries.Inc()
}

// RecordClaimRetriesExhausted increments the exhausted-retries counter.
func RecordClaimRetriesExhausted() {
	globalManager.claimRetriesExhausted.Inc()
}

// Quota cache helpers.

// RecordQuotaCacheHit increments the quota cache hit counter.
func RecordQuotaCacheHit() {
	globalManager.quotaCacheHits.Inc()
}

// RecordQuotaCacheMiss increments the quota cache miss counter.
func RecordQuotaCacheMiss() {
	globalManager.quotaCacheMisses.Inc()
}

// UpdateQuotaCacheSize sets the current quota cache entry count.
func UpdateQuotaCacheSize(size int) {
	globalManager.quotaCacheSize.Set(float64(size))
}

// Issue store helpers.

// RecordStoreCommit increments the committed mutations counter.
func RecordStoreCommit() {
	globalManager.storeCommits.Inc()
}

// RecordStorePreconditionFailed increments the precondition-rejected counter.
func RecordStorePreconditionFailed() {
	globalManager.storePreconditionFailed.Inc()
}

// RecordStoreUnavailable increments the transient store failure counter.
func RecordStoreUnavailable() {
	globalManager.storeUnavailable.Inc()
}

// RecordStoreUpdateLatency records conditional update latency.
func RecordStoreUpdateLatency(latencyMs float64) {
	globalManager.storeUpdateLatency.Observe(latencyMs)
}

// Sweeper helpers.

// RecordSweepRun increments the sweep pass counter.
func RecordSweepRun() {
	globalManager.sweepRuns.Inc()
}

// RecordSweepDuration records one sweep pass duration.
func RecordSweepDuration(latencyMs float64) {
	globalManager.sweepDuration.Observe(latencyMs)
}

// RecordIssueExpired increments the expired issues counter.
func RecordIssueExpired() {
	globalManager.issuesExpired.Inc()
}

// RecordPenaltyPoints adds to the deducted penalty points counter.
func RecordPenaltyPoints(points int) {
	globalManager.penaltyPoints.Add(float64(points))
}

// RecordAwardPoints adds to the awarded points counter.
func RecordAwardPoints(points int) {
	globalManager.awardPoints.Add(float64(points))
}

// Reconciliation helpers.

// RecordReconcileConfirmed increments the confirmed optimistic claims counter.
func RecordReconcileConfirmed() {
	globalManager.reconcileConfirmed.Inc()
}

// RecordReconcileRollback increments the rollback counter.
func RecordReconcileRollback() {
	globalManager.reconcileRollbacks.Inc()
}

// RecordFeedError increments the change feed failure counter.
func RecordFeedError() {
	globalManager.feedErrors.Inc()
}

// RecordFeedLocalEchoDropped increments the dropped local echo counter.
func RecordFeedLocalEchoDropped() {
	globalManager.feedLocalEchoDropped.Inc()
}

// Contest scale helpers.

// UpdateRegisteredTeams sets the registered team count.
func UpdateRegisteredTeams(count int) {
	globalManager.registeredTeams.Set(float64(count))
}

// UpdateTrackedIssues sets the tracked issue count.
func UpdateTrackedIssues(count int) {
	globalManager.trackedIssues.Set(float64(count))
}

// Queue helpers.

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// Worker helpers.

// UpdateWorkerCount sets the release worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records release worker job latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the release worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// HTTP helpers.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error helpers.

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System performance helpers.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Package metrics provides Prometheus metrics for the Somurie creator score service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// scoreBuckets covers the 0-100 overall score range in tens.
var scoreBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 79, 80, 90, 100} //nolint:gochecknoglobals // static bucket layout

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Jobs
	jobsEnqueued *prometheus.CounterVec
	jobsFinished *prometheus.CounterVec
	jobRetries   prometheus.Counter
	jobDuration  prometheus.Histogram
	queueDepth   prometheus.Gauge
	retainedJobs prometheus.Gauge
	workerCount  prometheus.Gauge
	workerPanics prometheus.Counter

	// Upstream social-graph API
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	rateLimiterWait  prometheus.Histogram
	rateLimiterLoad  prometheus.Gauge

	// Metrics cache
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheSize       prometheus.Gauge
	degradedFetches prometheus.Counter

	// Scores
	scoreDistribution prometheus.Histogram
	provisionalScores prometheus.Counter
	storeLatency      *prometheus.HistogramVec

	// Delivery
	notifications     *prometheus.CounterVec
	webhookEvents     *prometheus.CounterVec
	webhookDuplicates prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec
	errorsByComponent   *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "somurie",
		subsystem:        "score",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 60000},
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.jobsEnqueued = m.counterVec("jobs_enqueued_total", "Score jobs enqueued by priority", "priority")
	m.jobsFinished = m.counterVec("jobs_finished_total", "Score jobs reaching a terminal state", "outcome")
	m.jobRetries = m.counter("job_retries_total", "Pipeline attempts retried after a failure or degraded fetch")
	m.jobDuration = m.histogram("job_duration_milliseconds", "End to end score job duration", m.histogramBuckets)
	m.queueDepth = m.gauge("queue_depth", "Jobs waiting in the priority queue")
	m.retainedJobs = m.gauge("retained_jobs", "Job records held for inspection")
	m.workerCount = m.gauge("worker_count", "Configured scheduler workers")
	m.workerPanics = m.counter("worker_panics_total", "Job pipelines that panicked and were recovered")

	m.upstreamRequests = m.counterVec("upstream_requests_total", "Social-graph API calls by endpoint and status", "endpoint", "status")
	m.upstreamLatency = m.histogramVec("upstream_latency_milliseconds", "Social-graph API call latency", "endpoint")
	m.rateLimiterWait = m.histogram("rate_limiter_wait_milliseconds", "Time spent waiting for a rate limiter slot", m.histogramBuckets)
	m.rateLimiterLoad = m.gauge("rate_limiter_load", "Calls recorded in the trailing rate limit window")

	m.cacheHits = m.counter("metrics_cache_hits_total", "Raw metrics cache hits")
	m.cacheMisses = m.counter("metrics_cache_misses_total", "Raw metrics cache misses")
	m.cacheSize = m.gauge("metrics_cache_entries", "Raw metrics cache entries")
	m.degradedFetches = m.counter("degraded_fetches_total", "Fetches that fell back to zero-valued metrics")

	m.scoreDistribution = m.histogram("overall_score", "Distribution of persisted overall scores", scoreBuckets)
	m.provisionalScores = m.counter("provisional_scores_total", "Scores persisted from degraded metrics")
	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Persistence operation latency", "op")

	m.notifications = m.counterVec("notifications_total", "Notification deliveries by notifier and outcome", "notifier", "outcome")
	m.webhookEvents = m.counterVec("webhook_events_total", "Inbound webhook events by type", "type")
	m.webhookDuplicates = m.counter("webhook_duplicates_total", "Inbound webhook events dropped as duplicates")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")
	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause time", m.histogramBuckets)
}

// RecordJobEnqueued counts a job by priority label.
func RecordJobEnqueued(priority string) {
	globalManager.jobsEnqueued.WithLabelValues(priority).Inc()
}

// RecordJobFinished counts a terminal job transition and its duration.
func RecordJobFinished(outcome string, durationMs float64) {
	globalManager.jobsFinished.WithLabelValues(outcome).Inc()
	globalManager.jobDuration.Observe(durationMs)
}

// RecordJobRetry counts a retried pipeline attempt.
func RecordJobRetry() {
	globalManager.jobRetries.Inc()
}

// UpdateQueueDepth sets the number of queued jobs.
func UpdateQueueDepth(n int) {
	globalManager.queueDepth.Set(float64(n))
}

// UpdateRetainedJobs sets the number of retained job records.
func UpdateRetainedJobs(n int) {
	globalManager.retainedJobs.Set(float64(n))
}

// UpdateWorkerCount sets the number of scheduler workers.
func UpdateWorkerCount(n int) {
	globalManager.workerCount.Set(float64(n))
}

// RecordWorkerPanic counts a recovered pipeline panic.
func RecordWorkerPanic() {
	globalManager.workerPanics.Inc()
}

// RecordUpstreamRequest counts one external API call and its latency.
func RecordUpstreamRequest(endpoint, status string, latencyMs float64) {
	globalManager.upstreamRequests.WithLabelValues(endpoint, status).Inc()
	globalManager.upstreamLatency.WithLabelValues(endpoint).Observe(latencyMs)
}

// RecordRateLimiterWait observes time spent blocked in the rate limiter.
func RecordRateLimiterWait(waitMs float64) {
	globalManager.rateLimiterWait.Observe(waitMs)
}

// UpdateRateLimiterLoad sets the calls recorded in the trailing window.
func UpdateRateLimiterLoad(n int) {
	globalManager.rateLimiterLoad.Set(float64(n))
}

// RecordCacheHit counts a metrics cache hit.
func RecordCacheHit() {
	globalManager.cacheHits.Inc()
}

// RecordCacheMiss counts a metrics cache miss.
func RecordCacheMiss() {
	globalManager.cacheMisses.Inc()
}

// UpdateCacheSize sets the number of cached metrics snapshots.
func UpdateCacheSize(n int) {
	globalManager.cacheSize.Set(float64(n))
}

// RecordDegradedFetch counts a fallback to zero-valued metrics.
func RecordDegradedFetch() {
	globalManager.degradedFetches.Inc()
}

// RecordScore observes a persisted overall score.
func RecordScore(overall int, provisional bool) {
	globalManager.scoreDistribution.Observe(float64(overall))
	if provisional {
		globalManager.provisionalScores.Inc()
	}
}

// RecordStoreLatency observes one persistence operation.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordNotification counts one notification delivery attempt.
func RecordNotification(notifier, outcome string) {
	globalManager.notifications.WithLabelValues(notifier, outcome).Inc()
}

// RecordWebhookEvent counts an inbound webhook event by type.
func RecordWebhookEvent(eventType string) {
	globalManager.webhookEvents.WithLabelValues(eventType).Inc()
}

// RecordWebhookDuplicate counts a dropped duplicate webhook event.
func RecordWebhookDuplicate() {
	globalManager.webhookDuplicates.Inc()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an HTTP error for an endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorByComponent records an error for a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage updates system memory usage.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount updates the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records the average GC pause time.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

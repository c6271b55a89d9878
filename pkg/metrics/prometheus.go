// Package metrics provides Prometheus metrics for the ridergrid service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Cohort building
	cohortBuilds      prometheus.Counter
	cohortBuildTime   prometheus.Histogram
	cohortRows        prometheus.Gauge
	liveClients       prometheus.Gauge
	livePushes        prometheus.Counter
	liveThrottled     prometheus.Counter

	// Athlete store
	storeRecords        prometheus.Gauge
	storeFieldsApplied  prometheus.Counter
	storeFieldsPinned   prometheus.Counter
	storePersistLatency prometheus.Histogram

	// Rider database import
	importBatches *prometheus.CounterVec
	importRiders  *prometheus.CounterVec
	importLatency prometheus.Histogram

	// Telemetry
	telemetrySamples    prometheus.Counter
	telemetryDuplicates prometheus.Counter
	maxImprovements     prometheus.Counter

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueues      prometheus.Counter
	queueDequeues      prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

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

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to keep default Go collectors out of /healthz.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

// LatencyBuckets are the histogram bounds, in milliseconds, of the global manager.
var LatencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 5000} //nolint:gochecknoglobals // shared bucket layout

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(
		WithNamespace("ridergrid"),
		WithSubsystem("cohort"),
		WithHistogramBuckets(LatencyBuckets),
		WithPrometheusRegistry(customRegistry),
	)
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ridergrid",
		subsystem:        "cohort",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.cohortBuilds = m.counter("builds_total", "Total number of cohort builds")
	m.cohortBuildTime = m.histogram("build_duration_milliseconds", "Cohort build duration in milliseconds", m.histogramBuckets)
	m.cohortRows = m.gauge("rows", "Rows in the most recent cohort build")
	m.liveClients = m.gauge("live_clients", "Connected live websocket clients")
	m.livePushes = m.counter("live_pushes_total", "Cohort snapshots pushed to live clients")
	m.liveThrottled = m.counter("live_throttled_total", "Live recomputations deferred by the minimum interval gate")

	m.storeRecords = m.gauge("store_records", "Athlete records held by the store")
	m.storeFieldsApplied = m.counter("store_fields_applied_total", "Fields overwritten by merges")
	m.storeFieldsPinned = m.counter("store_fields_protected_total", "Incoming fields skipped because the user edited them")
	m.storePersistLatency = m.histogram("store_persist_duration_milliseconds", "Time to write the athlete blob", m.histogramBuckets)

	m.importBatches = m.counterVec("import_batches_total", "Rider database batches by result", "result")
	m.importRiders = m.counterVec("import_riders_total", "Riders requested from the rider database by outcome", "outcome")
	m.importLatency = m.histogram("import_batch_duration_milliseconds", "Rider database batch round trip", []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000})

	m.telemetrySamples = m.counter("telemetry_samples_total", "Telemetry samples accepted")
	m.telemetryDuplicates = m.counter("telemetry_duplicates_total", "Telemetry samples dropped as duplicates")
	m.maxImprovements = m.counter("max_improvements_total", "Fields raised by live max tracking")

	m.queueSize = m.gauge("queue_size", "Current size of the telemetry queue")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the telemetry queue")
	m.queueUtilization = m.gauge("queue_utilization", "Telemetry queue utilization ratio")
	m.queueEnqueues = m.counter("queue_enqueue_total", "Samples enqueued")
	m.queueDequeues = m.counter("queue_dequeue_total", "Samples dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Samples rejected by the queue")

	m.workerCount = m.gauge("worker_count", "Telemetry workers running")
	m.workerProcessingLatency = m.histogram("worker_processing_milliseconds", "Time to apply one sample", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Samples that failed to apply")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")
	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

func on() bool { return globalManager != nil && globalManager.enabled }

// RecordCohortBuild records one cohort build and its row count.
func RecordCohortBuild(latencyMs float64, rows int) {
	if !on() {
		return
	}
	globalManager.cohortBuilds.Inc()
	globalManager.cohortBuildTime.Observe(latencyMs)
	globalManager.cohortRows.Set(float64(rows))
}

// UpdateLiveClients sets the live client gauge.
func UpdateLiveClients(n int) {
	if on() {
		globalManager.liveClients.Set(float64(n))
	}
}

// RecordLivePush counts one snapshot sent to a live client.
func RecordLivePush() {
	if on() {
		globalManager.livePushes.Inc()
	}
}

// RecordLiveThrottled counts one recomputation deferred by the interval gate.
func RecordLiveThrottled() {
	if on() {
		globalManager.liveThrottled.Inc()
	}
}

// UpdateStoreRecords sets the athlete record gauge.
func UpdateStoreRecords(n int) {
	if on() {
		globalManager.storeRecords.Set(float64(n))
	}
}

// RecordStoreMerge counts applied and user-protected fields of a merge.
func RecordStoreMerge(applied, protected int) {
	if !on() {
		return
	}
	globalManager.storeFieldsApplied.Add(float64(applied))
	globalManager.storeFieldsPinned.Add(float64(protected))
}

// RecordStorePersistLatency records how long writing the athlete blob took.
func RecordStorePersistLatency(latencyMs float64) {
	if on() {
		globalManager.storePersistLatency.Observe(latencyMs)
	}
}

// RecordImportBatch records one rider database batch; result is "ok" or "failed".
func RecordImportBatch(result string, latencyMs float64) {
	if !on() {
		return
	}
	globalManager.importBatches.WithLabelValues(result).Inc()
	globalManager.importLatency.Observe(latencyMs)
}

// RecordImportRiders counts riders by outcome: "imported" or "not_found".
func RecordImportRiders(outcome string, n int) {
	if on() && n > 0 {
		globalManager.importRiders.WithLabelValues(outcome).Add(float64(n))
	}
}

// RecordTelemetrySample counts one accepted sample.
func RecordTelemetrySample() {
	if on() {
		globalManager.telemetrySamples.Inc()
	}
}

// RecordTelemetryDuplicate counts one dropped duplicate sample.
func RecordTelemetryDuplicate() {
	if on() {
		globalManager.telemetryDuplicates.Inc()
	}
}

// RecordMaxImprovements counts fields raised by max tracking.
func RecordMaxImprovements(n int) {
	if on() && n > 0 {
		globalManager.maxImprovements.Add(float64(n))
	}
}

// UpdateQueueSize sets the queue size gauge.
func UpdateQueueSize(size int) {
	if on() {
		globalManager.queueSize.Set(float64(size))
	}
}

// UpdateQueueCapacity sets the queue capacity gauge.
func UpdateQueueCapacity(capacity int) {
	if on() {
		globalManager.queueCapacity.Set(float64(capacity))
	}
}

// UpdateQueueUtilization sets the queue utilization gauge.
func UpdateQueueUtilization(utilization float64) {
	if on() {
		globalManager.queueUtilization.Set(utilization)
	}
}

// RecordQueueEnqueue counts one enqueue.
func RecordQueueEnqueue() {
	if on() {
		globalManager.queueEnqueues.Inc()
	}
}

// RecordQueueDequeue counts one dequeue.
func RecordQueueDequeue() {
	if on() {
		globalManager.queueDequeues.Inc()
	}
}

// RecordQueueEnqueueError counts one rejected enqueue.
func RecordQueueEnqueueError() {
	if on() {
		globalManager.queueEnqueueErrors.Inc()
	}
}

// UpdateWorkerCount sets the worker gauge.
func UpdateWorkerCount(count int) {
	if on() {
		globalManager.workerCount.Set(float64(count))
	}
}

// RecordWorkerProcessingLatency records the time to apply one sample.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if on() {
		globalManager.workerProcessingLatency.Observe(latencyMs)
	}
}

// RecordWorkerError counts one failed sample.
func RecordWorkerError() {
	if on() {
		globalManager.workerErrors.Inc()
	}
}

// RecordHTTPRequest counts one HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if on() {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records one HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if on() {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// RecordErrorByEndpoint counts one HTTP error.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if on() {
		globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// RecordErrorByComponent counts one error raised inside a component.
func RecordErrorByComponent(component, errorType string) {
	if on() {
		globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// UpdateSystemMemoryUsage sets the heap gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	if on() {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(count int) {
	if on() {
		globalManager.systemGoroutineCount.Set(float64(count))
	}
}

// RecordSystemGCPauseTime records the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	if on() {
		globalManager.systemGCPauseTime.Observe(pauseMs)
	}
}

// GetRegistry returns the registry served on /healthz.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

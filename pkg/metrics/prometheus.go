// Package metrics provides Prometheus metrics for the geocapture service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the geocapture service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Capture metrics
	eventsAccepted *prometheus.CounterVec
	eventsRejected *prometheus.CounterVec
	eventLogSize   prometheus.Gauge

	// Durability metrics
	flushTotal    prometheus.Counter
	flushFailures prometheus.Counter
	flushLatency  prometheus.Histogram
	artifactBytes prometheus.Gauge

	// Operator notice pipeline
	noticeQueueSize   prometheus.Gauge
	noticeQueueDrops  prometheus.Counter
	noticesDelivered  prometheus.Counter
	noticeWorkerCount prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRateLimited     *prometheus.CounterVec

	// Error metrics
	errorsByComponent *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "geocapture",
		subsystem:        "ingest",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.eventsAccepted = auto.NewCounterVec(
		m.counterOpts("events_accepted_total", "Capture events appended to the event log by kind"),
		[]string{"kind"},
	)
	m.eventsRejected = auto.NewCounterVec(
		m.counterOpts("events_rejected_total", "Capture payloads rejected at ingestion by kind and reason"),
		[]string{"kind", "reason"},
	)
	m.eventLogSize = auto.NewGauge(m.gaugeOpts("event_log_size", "Current number of events in the in-memory log"))

	m.flushTotal = auto.NewCounter(m.counterOpts("flush_total", "Durability flushes attempted"))
	m.flushFailures = auto.NewCounter(m.counterOpts("flush_failures_total", "Durability flushes that failed to write the artifact"))
	m.flushLatency = auto.NewHistogram(m.histogramOpts("flush_latency_milliseconds", "Time spent serializing and writing the artifact"))
	m.artifactBytes = auto.NewGauge(m.gaugeOpts("artifact_bytes", "Size of the last successfully written artifact"))

	m.noticeQueueSize = auto.NewGauge(m.gaugeOpts("notice_queue_size", "Operator notices waiting to be delivered"))
	m.noticeQueueDrops = auto.NewCounter(m.counterOpts("notice_queue_drops_total", "Operator notices dropped because the queue was full or closed"))
	m.noticesDelivered = auto.NewCounter(m.counterOpts("notices_delivered_total", "Operator notices delivered by workers"))
	m.noticeWorkerCount = auto.NewGauge(m.gaugeOpts("notice_worker_count", "Number of running notice workers"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRateLimited = auto.NewCounterVec(
		m.counterOpts("http_rate_limited_total", "Requests refused by the per-origin rate limiter"),
		[]string{"endpoint"},
	)

	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines", "Number of goroutines"))
}

// Capture Metrics Functions.

// RecordEventAccepted counts an appended event.
func RecordEventAccepted(kind string) {
	globalManager.eventsAccepted.WithLabelValues(kind).Inc()
}

// RecordEventRejected counts a payload refused at ingestion.
func RecordEventRejected(kind, reason string) {
	globalManager.eventsRejected.WithLabelValues(kind, reason).Inc()
}

// UpdateEventLogSize sets the in-memory log length.
func UpdateEventLogSize(n int) {
	globalManager.eventLogSize.Set(float64(n))
}

// Durability Metrics Functions.

// RecordFlush records one flush attempt and its latency.
func RecordFlush(latencyMs float64, ok bool) {
	globalManager.flushTotal.Inc()
	globalManager.flushLatency.Observe(latencyMs)
	if !ok {
		globalManager.flushFailures.Inc()
	}
}

// UpdateArtifactBytes sets the size of the last written artifact.
func UpdateArtifactBytes(n int) {
	globalManager.artifactBytes.Set(float64(n))
}

// Notice Metrics Functions.

// UpdateNoticeQueueSize sets the pending notice count.
func UpdateNoticeQueueSize(n int) {
	globalManager.noticeQueueSize.Set(float64(n))
}

// RecordNoticeDropped counts a notice that could not be queued.
func RecordNoticeDropped() {
	globalManager.noticeQueueDrops.Inc()
}

// RecordNoticeDelivered counts a delivered notice.
func RecordNoticeDelivered() {
	globalManager.noticesDelivered.Inc()
}

// UpdateNoticeWorkerCount sets the running worker count.
func UpdateNoticeWorkerCount(n int) {
	globalManager.noticeWorkerCount.Set(float64(n))
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// RecordRateLimited counts a request refused by the rate limiter.
func RecordRateLimited(endpoint string) {
	globalManager.httpRateLimited.WithLabelValues(endpoint).Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// System Metrics Functions.

// UpdateSystemMemoryUsage sets the heap allocation in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

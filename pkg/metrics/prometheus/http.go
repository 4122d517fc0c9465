// Package prometheus implements the metrics interfaces on top of the
// Prometheus client library.
package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/fileshover/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// httpMetrics is the Prometheus implementation of metrics.HTTPMetrics.
type httpMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	requestsInFlight       prometheus.Gauge
	bytesSent              prometheus.Counter
	responseSize           prometheus.Histogram
	resolveTotal           *prometheus.CounterVec
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
	queueDepth             prometheus.Gauge
	workersBusy            prometheus.Gauge
	taskDuration           prometheus.Histogram
	taskPanics             prometheus.Counter
}

// NewHTTPMetrics creates a Prometheus-backed HTTPMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry
// not called).
func NewHTTPMetrics() metrics.HTTPMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopHTTPMetrics()
	}

	reg := metrics.GetRegistry()

	return &httpMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileshover_http_requests_total",
				Help: "Total number of HTTP requests by method and status code",
			},
			[]string{"method", "code"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "fileshover_http_request_duration_milliseconds",
				Help: "Duration of HTTP requests in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"method"},
		),
		requestsInFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "fileshover_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),
		bytesSent: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fileshover_http_bytes_sent_total",
				Help: "Total bytes written to clients, status line and headers included",
			},
		),
		responseSize: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "fileshover_http_response_size_bytes",
				Help: "Distribution of bytes written per response",
				Buckets: []float64{
					4096,      // 4KB
					65536,     // 64KB
					1048576,   // 1MB
					10485760,  // 10MB
					104857600, // 100MB
				},
			},
		),
		resolveTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileshover_filetree_resolve_total",
				Help: "Path lookups by outcome",
			},
			[]string{"outcome"},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "fileshover_http_active_connections",
				Help: "Current number of open HTTP connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fileshover_http_connections_accepted_total",
				Help: "Total number of HTTP connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fileshover_http_connections_closed_total",
				Help: "Total number of HTTP connections closed",
			},
		),
		connectionsForceClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fileshover_http_connections_force_closed_total",
				Help: "Total number of HTTP connections force-closed during shutdown",
			},
		),
		queueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "fileshover_pool_queue_depth",
				Help: "Connections waiting for a worker",
			},
		),
		workersBusy: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "fileshover_pool_workers_busy",
				Help: "Workers currently handling a connection",
			},
		),
		taskDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fileshover_pool_task_duration_milliseconds",
				Help:    "Time a connection held its worker in milliseconds",
				Buckets: []float64{1, 10, 100, 1000, 10000, 60000},
			},
		),
		taskPanics: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fileshover_pool_task_panics_total",
				Help: "Connection tasks that panicked",
			},
		),
	}
}

// knownMethods are the methods that get their own label value. The method
// token comes from the client, so anything else collapses into "other" to
// keep the number of series fixed.
var knownMethods = map[string]struct{}{
	"GET":     {},
	"HEAD":    {},
	"POST":    {},
	"PUT":     {},
	"DELETE":  {},
	"PATCH":   {},
	"OPTIONS": {},
	"CONNECT": {},
	"TRACE":   {},
}

func methodLabel(method string) string {
	if method == "" {
		return "unknown"
	}
	if _, ok := knownMethods[method]; ok {
		return method
	}
	return "other"
}

func (m *httpMetrics) RecordRequest(method string, status int, duration time.Duration, bytesSent int64) {
	method = methodLabel(method)
	code := "none"
	if status > 0 {
		code = strconv.Itoa(status)
	}

	m.requestsTotal.WithLabelValues(method, code).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds() * 1000)
	if bytesSent > 0 {
		m.bytesSent.Add(float64(bytesSent))
	}
	m.responseSize.Observe(float64(bytesSent))
}

func (m *httpMetrics) RecordRequestStart() {
	m.requestsInFlight.Inc()
}

func (m *httpMetrics) RecordRequestEnd() {
	m.requestsInFlight.Dec()
}

func (m *httpMetrics) RecordResolve(outcome string) {
	m.resolveTotal.WithLabelValues(outcome).Inc()
}

func (m *httpMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *httpMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *httpMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *httpMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}

func (m *httpMetrics) TaskQueued(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *httpMetrics) TaskStarted(running int) {
	m.workersBusy.Set(float64(running))
}

func (m *httpMetrics) TaskFinished(duration time.Duration, panicked bool) {
	m.workersBusy.Dec()
	m.taskDuration.Observe(duration.Seconds() * 1000)
	if panicked {
		m.taskPanics.Inc()
	}
}

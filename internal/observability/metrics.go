package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for Rasid on a custom
// registry, no global state. The confirmation gateway registers its own
// family on the same Registry.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Interpreter metrics.
	InterpRequestsTotal   *prometheus.CounterVec
	InterpRequestDuration prometheus.Histogram

	// Operation execution metrics.
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Reminder delivery metrics.
	RemindersSentTotal *prometheus.CounterVec

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics
// registered on a fresh prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		InterpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rasid",
			Subsystem: "interp",
			Name:      "requests_total",
			Help:      "Interpreter requests by status.",
		}, []string{"status"}),

		InterpRequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rasid",
			Subsystem: "interp",
			Name:      "request_duration_seconds",
			Help:      "Interpreter request duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		}),

		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rasid",
			Subsystem: "ops",
			Name:      "executions_total",
			Help:      "Operation executions by name and status.",
		}, []string{"operation", "status"}),

		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rasid",
			Subsystem: "ops",
			Name:      "execution_duration_seconds",
			Help:      "Operation execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		RemindersSentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rasid",
			Subsystem: "reminder",
			Name:      "sent_total",
			Help:      "Reminder messages sent by kind.",
		}, []string{"kind", "status"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rasid",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rasid",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rasid",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),
	}

	reg.MustRegister(
		m.InterpRequestsTotal,
		m.InterpRequestDuration,
		m.OperationsTotal,
		m.OperationDuration,
		m.RemindersSentTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}

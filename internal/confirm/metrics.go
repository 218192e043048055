package confirm

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the confirmation gateway.
// All methods are safe on a nil receiver so metrics stay optional.
type Metrics struct {
	Created  prometheus.Counter
	Resolved *prometheus.CounterVec // labelled by outcome
	Expired  prometheus.Counter
	Rejected *prometheus.CounterVec // labelled by reason
}

// NewMetrics creates and registers gateway metrics.
// Returns nil if reg is nil.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		Created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rasid",
			Subsystem: "confirm",
			Name:      "pending_created_total",
			Help:      "Total pending actions created.",
		}),
		Resolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rasid",
			Subsystem: "confirm",
			Name:      "resolutions_total",
			Help:      "Total confirmation resolutions by outcome.",
		}, []string{"outcome"}),
		Expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rasid",
			Subsystem: "confirm",
			Name:      "pending_expired_total",
			Help:      "Total pending actions that expired unresolved.",
		}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rasid",
			Subsystem: "confirm",
			Name:      "creations_rejected_total",
			Help:      "Total pending action creations rejected.",
		}, []string{"reason"}),
	}

	reg.MustRegister(m.Created, m.Resolved, m.Expired, m.Rejected)
	return m
}

func (m *Metrics) incCreated() {
	if m != nil {
		m.Created.Inc()
	}
}

func (m *Metrics) incResolved(outcome string) {
	if m != nil {
		m.Resolved.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) incExpired() {
	if m != nil {
		m.Expired.Inc()
	}
}

func (m *Metrics) addExpired(n int) {
	if m != nil {
		m.Expired.Add(float64(n))
	}
}

func (m *Metrics) incRejected(reason string) {
	if m != nil {
		m.Rejected.WithLabelValues(reason).Inc()
	}
}

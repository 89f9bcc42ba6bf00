package resilience

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the prometheus instrumentation for C3's observability hooks
// (spec §4.3: "every attempt emits a metric tuple (service, tenant, outcome,
// latency, state)").
type Metrics struct {
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	state    *prometheus.GaugeVec
}

// NewMetrics registers the dispatcher's metric families against reg. Pass
// prometheus.NewRegistry() in tests to avoid global-registry collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corepay",
			Subsystem: "dispatcher",
			Name:      "attempts_total",
			Help:      "Outbound dispatch attempts by service, tenant, outcome and breaker state.",
		}, []string{"service", "tenant", "outcome", "state"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "corepay",
			Subsystem: "dispatcher",
			Name:      "attempt_latency_seconds",
			Help:      "Latency of individual outbound dispatch attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "tenant"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "corepay",
			Subsystem: "dispatcher",
			Name:      "breaker_state",
			Help:      "Current circuit breaker state (0=closed,1=half_open,2=open) by service and tenant.",
		}, []string{"service", "tenant"}),
	}
	reg.MustRegister(m.attempts, m.latency, m.state)
	return m
}

func (m *Metrics) observe(outcome domainCallOutcome) {
	m.attempts.WithLabelValues(outcome.service, outcome.tenant, outcome.outcome, outcome.state).Inc()
	m.latency.WithLabelValues(outcome.service, outcome.tenant).Observe(outcome.latencySeconds)
}

func (m *Metrics) setState(service, tenant string, stateValue float64) {
	m.state.WithLabelValues(service, tenant).Set(stateValue)
}

type domainCallOutcome struct {
	service        string
	tenant         string
	outcome        string
	state          string
	latencySeconds float64
}

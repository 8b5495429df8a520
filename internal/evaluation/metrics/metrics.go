package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the evaluation module.
type Metrics struct {
	// Deploy gate outcomes by decision and environment
	EvaluationOutcome *prometheus.CounterVec

	// Full pipeline latency from request to decision
	EvaluateLatency prometheus.Histogram

	// Policy engine round-trip latency
	EngineLatency prometheus.Histogram

	// Engine failures by kind
	EngineFailures *prometheus.CounterVec

	// Which resolution level answered: override, application, vertical, global
	PolicySource *prometheus.CounterVec
}

// New creates a Metrics instance with all evaluation metrics registered.
func New() *Metrics {
	return &Metrics{
		EvaluationOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_evaluation_outcomes_total",
			Help: "Total evaluation outcomes by decision and environment",
		}, []string{"decision", "environment"}),

		EvaluateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_evaluation_duration_seconds",
			Help:    "Duration of full compliance evaluation including engine call and persistence",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		EngineLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_engine_duration_seconds",
			Help:    "Duration of policy engine queries",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		EngineFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_engine_failures_total",
			Help: "Total policy engine failures by kind",
		}, []string{"kind"}), // kind: "unavailable", "timeout", "contract"

		PolicySource: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_policy_source_total",
			Help: "Which policy resolution level produced the decision",
		}, []string{"source"}), // source: "override", "application", "vertical", "global"
	}
}

// IncrementOutcome records a deploy gate outcome.
func (m *Metrics) IncrementOutcome(decision, environment string) {
	if m != nil {
		m.EvaluationOutcome.WithLabelValues(decision, environment).Inc()
	}
}

// ObserveEvaluateLatency records the full pipeline duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

// ObserveEngineLatency records one engine query duration.
func (m *Metrics) ObserveEngineLatency(d time.Duration) {
	if m != nil {
		m.EngineLatency.Observe(d.Seconds())
	}
}

// IncrementEngineFailure records an engine failure by kind.
func (m *Metrics) IncrementEngineFailure(kind string) {
	if m != nil {
		m.EngineFailures.WithLabelValues(kind).Inc()
	}
}

// IncrementPolicySource records the resolution level that answered.
func (m *Metrics) IncrementPolicySource(source string) {
	if m != nil {
		m.PolicySource.WithLabelValues(source).Inc()
	}
}

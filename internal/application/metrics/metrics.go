// Package metrics provides observability for the application registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks registry activity: how many applications exist, how often
// their compliance configuration changes, and lookup latency on the
// evaluation hot path.
type Metrics struct {
	ApplicationsCreated prometheus.Counter
	EnvironmentChanges  *prometheus.CounterVec
	LookupDuration      prometheus.Histogram
}

// New creates a Metrics instance with all registry metrics registered.
func New() *Metrics {
	return &Metrics{
		ApplicationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_applications_created_total",
			Help: "Total number of applications registered",
		}),
		EnvironmentChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_environment_changes_total",
			Help: "Environment configuration changes by kind",
		}, []string{"kind"}),
		LookupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_application_lookup_duration_seconds",
			Help:    "Duration of application lookups (evaluation hot path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementApplicationsCreated records a successful registration.
func (m *Metrics) IncrementApplicationsCreated() {
	if m == nil {
		return
	}
	m.ApplicationsCreated.Inc()
}

// IncrementEnvironmentChange records a configuration change. Kind is one of
// "added", "updated", "deactivated", "reactivated".
func (m *Metrics) IncrementEnvironmentChange(kind string) {
	if m == nil {
		return
	}
	m.EnvironmentChanges.WithLabelValues(kind).Inc()
}

// ObserveLookup records the duration of an application lookup. Call with
// time.Now() at the start of the operation.
func (m *Metrics) ObserveLookup(start time.Time) {
	if m == nil {
		return
	}
	m.LookupDuration.Observe(time.Since(start).Seconds())
}

// Package metrics exposes Prometheus metrics for the draft workflow.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeDegraded = "degraded"
)

// Metrics is safe to use as a nil pointer, in which case nothing is recorded.
type Metrics struct {
	// Workflow operations by name and outcome
	Operations *prometheus.CounterVec

	OperationLatency *prometheus.HistogramVec

	// Index writes that failed after a successful commit
	IndexFailures *prometheus.CounterVec

	ExpiredDrafts prometheus.Counter
}

// New registers the workflow metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drafts_operations_total",
			Help: "Total workflow operations by operation and outcome",
		}, []string{"operation", "outcome"}),

		OperationLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "drafts_operation_duration_seconds",
			Help:    "Duration of workflow operations including index synchronization",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),

		IndexFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "drafts_index_failures_total",
			Help: "Index writes that failed after the store committed",
		}, []string{"kind"}),

		ExpiredDrafts: factory.NewCounter(prometheus.CounterOpts{
			Name: "drafts_expired_total",
			Help: "Drafts deleted by the expiry sweeper",
		}),
	}
}

func (m *Metrics) ObserveOperation(operation, outcome string, d time.Duration) {
	if m != nil {
		m.Operations.WithLabelValues(operation, outcome).Inc()
		m.OperationLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementIndexFailure(kind string) {
	if m != nil {
		m.IndexFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) AddExpired(n int) {
	if m != nil {
		m.ExpiredDrafts.Add(float64(n))
	}
}

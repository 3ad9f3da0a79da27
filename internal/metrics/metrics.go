// Package metrics holds the Prometheus instruments shared by the term
// dictionary, the quad index and the graph store. A nil *Metrics is valid
// and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeCreated  = "created"
	OutcomeExisting = "existing"

	StatusSuccess = "success"
	StatusError   = "error"
)

type Metrics struct {
	TermRegistrations *prometheus.CounterVec
	TermRemovals      *prometheus.CounterVec
	QuadOperations    *prometheus.CounterVec
	IndexSelections   *prometheus.CounterVec
	RangeResultSize   prometheus.Histogram
	OperationLatency  *prometheus.HistogramVec
}

// NewMetrics registers the instruments on reg under namespace. Returns nil
// when reg is nil.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		return nil
	}
	if namespace == "" {
		namespace = "quadstore"
	}

	return &Metrics{
		TermRegistrations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "term_registrations_total",
			Help:      "Number of term registrations by kind and outcome",
		}, []string{"kind", "outcome"}), // outcome: created/existing
		TermRemovals: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "term_removals_total",
			Help:      "Number of term records deleted from the dictionary",
		}, []string{"kind"}),
		QuadOperations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quad_operations_total",
			Help:      "Number of quad index operations by operation and status",
		}, []string{"operation", "status"}),
		IndexSelections: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_selections_total",
			Help:      "Number of range queries served by each permutation",
		}, []string{"permutation"}),
		RangeResultSize: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "range_result_size",
			Help:      "Number of quads returned by range queries",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		OperationLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of dictionary and index operations in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) TermRegistered(kind string, created bool) {
	if m == nil {
		return
	}
	outcome := OutcomeExisting
	if created {
		outcome = OutcomeCreated
	}
	m.TermRegistrations.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) TermRemoved(kind string) {
	if m == nil {
		return
	}
	m.TermRemovals.WithLabelValues(kind).Inc()
}

func (m *Metrics) QuadOperation(operation string, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.QuadOperations.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) RangeServed(permutation string, results int) {
	if m == nil {
		return
	}
	m.IndexSelections.WithLabelValues(permutation).Inc()
	m.RangeResultSize.Observe(float64(results))
}

// ObserveSince records the time elapsed since start for operation
func (m *Metrics) ObserveSince(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

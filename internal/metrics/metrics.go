// Package metrics exposes Prometheus instrumentation for node selection and
// batch execution. Every method is safe on a nil *Metrics, so callers that do
// not want instrumentation simply pass nil.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sphinxql"

// Probe results.
const (
	ProbeLive = "live"
	ProbeDead = "dead"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Batch outcomes.
const (
	BatchOK            = "ok"
	BatchDispatchError = "dispatch_error"
	BatchPartial       = "partial"
)

// Metrics holds the collectors of one process.
type Metrics struct {
	// Probes counts connection probes by node address and result.
	Probes *prometheus.CounterVec
	// CacheLookups counts live-set lookups by result.
	CacheLookups *prometheus.CounterVec
	// Selections counts nodes returned by the balancer.
	Selections *prometheus.CounterVec
	// NoReachable counts selections that failed because every node was dead.
	NoReachable prometheus.Counter
	// Batches counts multi-statement dispatches by outcome.
	Batches *prometheus.CounterVec
	// BatchDuration observes dispatch-to-last-row latency.
	BatchDuration prometheus.Histogram
	// BatchStatements observes statements per dispatched batch.
	BatchStatements prometheus.Histogram
}

// New creates the collectors and registers them on reg. A nil reg skips
// registration, which keeps tests independent of the default registry.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Connection probes against pool nodes.",
			},
			[]string{"node", "result"}, // result: live/dead
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "health_cache_lookups_total",
				Help:      "Live-set lookups in the health cache.",
			},
			[]string{"result"}, // result: hit/miss/error
		),
		Selections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "selections_total",
				Help:      "Nodes chosen by the weighted selector.",
			},
			[]string{"node"},
		),
		NoReachable: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "no_reachable_node_total",
				Help:      "Selections that failed because every node was dead.",
			},
		),
		Batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Multi-statement batches dispatched.",
			},
			[]string{"outcome"}, // outcome: ok/dispatch_error/partial
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Time from dispatch to the last materialized row.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		BatchStatements: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_statements",
				Help:      "Statements per dispatched batch.",
				Buckets:   []float64{1, 2, 4, 8, 16, 32},
			},
		),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Probes,
		m.CacheLookups,
		m.Selections,
		m.NoReachable,
		m.Batches,
		m.BatchDuration,
		m.BatchStatements,
	}
}

// ObserveProbe records one probe of node.
func (m *Metrics) ObserveProbe(node string, live bool) {
	if m == nil {
		return
	}
	result := ProbeDead
	if live {
		result = ProbeLive
	}
	m.Probes.WithLabelValues(node, result).Inc()
}

// ObserveCacheLookup records one health-cache lookup.
func (m *Metrics) ObserveCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveSelection records the node returned by the balancer.
func (m *Metrics) ObserveSelection(node string) {
	if m == nil {
		return
	}
	m.Selections.WithLabelValues(node).Inc()
}

// ObserveNoReachable records a selection over an entirely dead pool.
func (m *Metrics) ObserveNoReachable() {
	if m == nil {
		return
	}
	m.NoReachable.Inc()
}

// ObserveBatch records one dispatched batch.
func (m *Metrics) ObserveBatch(outcome string, statements int, took time.Duration) {
	if m == nil {
		return
	}
	m.Batches.WithLabelValues(outcome).Inc()
	m.BatchStatements.Observe(float64(statements))
	m.BatchDuration.Observe(took.Seconds())
}

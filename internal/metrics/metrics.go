// Package metrics holds the prometheus instruments of the enrichment engine.
// Instruments are registered on a caller-supplied registry so that tests and
// embedders never touch the global default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels of the enrichments counter.
const (
	ResultOK       = "ok"
	ResultTainted  = "tainted"
	ResultContract = "contract_violation"
	ResultError    = "error"
)

// Metrics records enrichment outcomes.
type Metrics struct {
	// enrichmentsTotal counts enrichments by result
	enrichmentsTotal *prometheus.CounterVec

	// factsPerEnrichment tracks the size of produced fact tables
	factsPerEnrichment prometheus.Histogram

	// stageDuration tracks the latency of each pipeline stage
	stageDuration *prometheus.HistogramVec

	// moveErrorsTotal counts illegal moves found while gathering move paths
	moveErrorsTotal prometheus.Counter

	// cacheLookups counts enriched-body cache lookups by outcome
	cacheLookups *prometheus.CounterVec
}

// New creates the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		enrichmentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grf_enrichments_total",
			Help: "Total procedure enrichments by result",
		}, []string{"result"}),
		factsPerEnrichment: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "grf_facts_per_enrichment",
			Help:    "Number of facts produced per enrichment",
			Buckets: prometheus.ExponentialBuckets(8, 4, 8), // 8 to ~130k
		}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grf_stage_duration_seconds",
			Help:    "Enrichment stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
		}, []string{"stage"}),
		moveErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "grf_move_errors_total",
			Help: "Total illegal moves recorded",
		}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grf_cache_lookups_total",
			Help: "Enriched body cache lookups by outcome",
		}, []string{"outcome"}),
	}
}

// ObserveEnrichment records one finished enrichment.
func (m *Metrics) ObserveEnrichment(result string, facts int) {
	if m == nil {
		return
	}
	m.enrichmentsTotal.WithLabelValues(result).Inc()
	if result == ResultOK || result == ResultTainted {
		m.factsPerEnrichment.Observe(float64(facts))
	}
}

// ObserveStage records how long stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// AddMoveErrors counts n illegal moves.
func (m *Metrics) AddMoveErrors(n int) {
	if m == nil || n == 0 {
		return
	}
	m.moveErrorsTotal.Add(float64(n))
}

// CacheLookup counts a cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookups.WithLabelValues(outcome).Inc()
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordOnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveEnrichment(ResultOK, 120)
	m.ObserveEnrichment(ResultOK, 40)
	m.ObserveEnrichment(ResultContract, 0)
	m.ObserveStage("typeck", 3*time.Millisecond)
	m.AddMoveErrors(2)
	m.AddMoveErrors(0)
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.enrichmentsTotal.WithLabelValues(ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.enrichmentsTotal.WithLabelValues(ResultContract)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.moveErrorsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))

	n, err := testutil.GatherAndCount(reg, "grf_facts_per_enrichment", "grf_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveEnrichment(ResultOK, 1)
		m.ObserveStage("renumber", time.Second)
		m.AddMoveErrors(1)
		m.CacheLookup(true)
	})
}

func TestDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

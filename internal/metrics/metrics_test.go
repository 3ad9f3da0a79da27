package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_NilRegistry(t *testing.T) {
	m := NewMetrics(nil, "")
	assert.Nil(t, m)

	// every recorder is safe on a nil receiver
	m.TermRegistered("uri", true)
	m.TermRemoved("uri")
	m.QuadOperation("index", nil)
	m.RangeServed("SPOG", 3)
	m.ObserveSince("range", time.Now())
}

func TestMetrics_Recorders(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg, "test")
	require.NotNil(t, m)

	m.TermRegistered("uri", true)
	m.TermRegistered("uri", false)
	m.TermRegistered("uri", false)
	m.TermRemoved("literal")
	m.QuadOperation("index", nil)
	m.QuadOperation("index", errors.New("duplicate"))
	m.RangeServed("POG", 2)
	m.RangeServed("POG", 0)
	m.ObserveSince("range", time.Now())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TermRegistrations.WithLabelValues("uri", OutcomeCreated)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TermRegistrations.WithLabelValues("uri", OutcomeExisting)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TermRemovals.WithLabelValues("literal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuadOperations.WithLabelValues("index", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuadOperations.WithLabelValues("index", StatusError)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IndexSelections.WithLabelValues("POG")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RangeResultSize))

	count, err := testutil.GatherAndCount(reg, "test_term_registrations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()
	m.SetSlotStates("sim", map[string]int{"FREE": 30, "CURRENT": 2})
	m.CompileOutcome("sim", "current")
	m.CompileOutcome("sim", "current")
	m.PassOutcome("2", "stale")
	m.CacheLookup(true)
	m.ObserveBuild(time.Second)

	assert.Equal(t, 30.0, testutil.ToFloat64(m.slotState.WithLabelValues("sim", "FREE")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.compiles.WithLabelValues("sim", "current")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues("2", "stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cache.WithLabelValues("hit")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "slotjit_slot_compiles_total")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.SetSlotStates("sim", map[string]int{"FREE": 1})
	m.CompileOutcome("sim", "current")
	m.PassOutcome("1", "ok")
	m.CacheLookup(false)
	m.ObserveBuild(time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

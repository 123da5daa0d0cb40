package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.VersionRecorded()
	m.VersionRecorded()
	m.VersionConflict()
	m.Evaluation("EXCEEDED_SLA_THRESHOLD", true)
	m.IdempotentReplay()
	m.ObserveRequest(http.MethodPost, "/sla-traces/calculate", http.StatusCreated, 15*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.versionsRecorded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.versionConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evaluationsTotal.WithLabelValues("EXCEEDED_SLA_THRESHOLD", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.idempotentReplays))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "/sla-traces/calculate", "201")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.VersionRecorded()
		m.VersionConflict()
		m.Evaluation("WITHIN_SLA_THRESHOLD", false)
		m.IdempotentReplay()
		m.ObserveRequest(http.MethodGet, "/healthz", http.StatusOK, time.Millisecond)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.VersionRecorded()

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "aegis_sla_config_versions_recorded_total 1"))
}

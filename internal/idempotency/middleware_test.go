package idempotency

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samijaber1/aegis-sla/internal/metrics"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func countingHandler(calls *int32, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(`{"call":` + string(rune('0'+n)) + `}`))
	})
}

func post(h http.Handler, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_ReplaysSuccessfulResponse(t *testing.T) {
	var calls int32
	mw := NewMiddleware(NewMemoryStore(), time.Minute, metrics.New(prometheus.NewRegistry()), zap.NewNop())
	h := mw.Handler(countingHandler(&calls, http.StatusCreated))

	first := post(h, "/sla-traces/calculate", "key-1")
	second := post(h, "/sla-traces/calculate", "key-1")

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
	assert.Empty(t, first.Header().Get(HeaderReplayed))
}

func TestMiddleware_KeysAreScopedByPath(t *testing.T) {
	var calls int32
	mw := NewMiddleware(NewMemoryStore(), time.Minute, nil, zap.NewNop())
	h := mw.Handler(countingHandler(&calls, http.StatusCreated))

	post(h, "/sla-traces/calculate", "key-1")
	post(h, "/sla-config-history", "key-1")

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestMiddleware_DoesNotStoreFailures(t *testing.T) {
	var calls int32
	mw := NewMiddleware(NewMemoryStore(), time.Minute, nil, zap.NewNop())
	h := mw.Handler(countingHandler(&calls, http.StatusConflict))

	post(h, "/sla-config-history", "key-1")
	rec := post(h, "/sla-config-history", "key-1")

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestMiddleware_PassThrough(t *testing.T) {
	var calls int32
	mw := NewMiddleware(NewMemoryStore(), time.Minute, nil, zap.NewNop())
	h := mw.Handler(countingHandler(&calls, http.StatusOK))

	post(h, "/sla-traces/calculate", "")
	post(h, "/sla-traces/calculate", "")

	req := httptest.NewRequest(http.MethodGet, "/sla-traces", nil)
	req.Header.Set(HeaderKey, "key-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestMiddleware_RejectsLongKey(t *testing.T) {
	var calls int32
	mw := NewMiddleware(NewMemoryStore(), time.Minute, nil, zap.NewNop())
	h := mw.Handler(countingHandler(&calls, http.StatusCreated))

	rec := post(h, "/sla-traces/calculate", strings.Repeat("k", maxKeyLength+1))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

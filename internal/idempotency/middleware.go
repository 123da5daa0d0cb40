package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/samijaber1/aegis-sla/internal/metrics"
	"go.uber.org/zap"
)

const (
	// HeaderKey carries the client-chosen idempotency key
	HeaderKey = "Idempotency-Key"

	// HeaderReplayed is set on responses served from the store
	HeaderReplayed = "Idempotent-Replayed"

	maxKeyLength = 255
)

// Middleware replays stored responses for repeated POST requests
type Middleware struct {
	store   Store
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewMiddleware creates a new idempotency middleware
func NewMiddleware(store Store, ttl time.Duration, m *metrics.Metrics, logger *zap.Logger) *Middleware {
	return &Middleware{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  logger,
	}
}

// Handler wraps next. Requests without the header pass through untouched.
// Only 2xx responses are stored, so a failed request can be retried with the same key.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderKey)
		if r.Method != http.MethodPost || key == "" {
			next.ServeHTTP(w, r)
			return
		}

		if len(key) > maxKeyLength {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{
				"error": fmt.Sprintf("%s header exceeds %d characters", HeaderKey, maxKeyLength),
			})
			return
		}

		storeKey := r.Method + ":" + r.URL.Path + ":" + key

		cached, err := m.store.Get(r.Context(), storeKey)
		switch {
		case err == nil:
			m.metrics.IdempotentReplay()
			m.logger.Debug("replaying stored response",
				zap.String("path", r.URL.Path),
				zap.String("idempotency_key", key),
			)
			writeStored(w, cached)
			return
		case !errors.Is(err, ErrNotFound):
			// Backend trouble must not block writes
			m.logger.Warn("idempotency lookup failed", zap.String("idempotency_key", key), zap.Error(err))
		}

		rec := &recorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status < 200 || rec.status >= 300 {
			return
		}

		resp := &Response{
			Status:      rec.status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
			StoredAt:    time.Now().UTC(),
		}

		// The request context may already be cancelled once the handler returns
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
		defer cancel()

		if err := m.store.Set(ctx, storeKey, resp, m.ttl); err != nil {
			m.logger.Warn("failed to store idempotent response", zap.String("idempotency_key", key), zap.Error(err))
		}
	})
}

func writeStored(w http.ResponseWriter, resp *Response) {
	if resp.ContentType != "" {
		w.Header().Set("Content-Type", resp.ContentType)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}

// recorder passes the response through while keeping a copy
type recorder struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (r *recorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

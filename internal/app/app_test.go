package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/samijaber1/aegis-sla/internal/config"
	"github.com/samijaber1/aegis-sla/internal/history"
	"github.com/samijaber1/aegis-sla/internal/idempotency"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestOpenStore_SQLite(t *testing.T) {
	store, err := OpenStore(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "app.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	assert.NoError(t, store.Ping(context.Background()))
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), config.DatabaseConfig{Driver: "mysql"}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewHistoryService_WithSchema(t *testing.T) {
	store, err := OpenStore(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "app.db"),
	}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	svc, err := NewHistoryService(store, config.HistoryConfig{
		MaxRetries:     1,
		SnapshotSchema: "../../" + DefaultSchemaFile,
	}, nil, zap.NewNop())
	require.NoError(t, err)

	_, err = svc.RecordChange(context.Background(), history.RecordInput{
		ConfigID:  "cfg",
		ChangedBy: "alice",
		NewConfig: map[string]any{"severity": ""},
	})
	assert.ErrorIs(t, err, history.ErrInvalidInput)
}

func TestNewHistoryService_MissingSchema(t *testing.T) {
	_, err := NewHistoryService(nil, config.HistoryConfig{SnapshotSchema: "missing.json"}, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestNewIdempotency(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		mw, store, err := NewIdempotency(ctx, &config.Config{Idempotency: config.IdempotencyConfig{Backend: "none"}}, nil, zap.NewNop())
		require.NoError(t, err)
		assert.Nil(t, mw)
		assert.Nil(t, store)
	})

	t.Run("memory", func(t *testing.T) {
		mw, store, err := NewIdempotency(ctx, &config.Config{Idempotency: config.IdempotencyConfig{Backend: "memory", TTL: time.Minute}}, nil, zap.NewNop())
		require.NoError(t, err)
		require.NotNil(t, mw)
		assert.IsType(t, &idempotency.MemoryStore{}, store)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := &config.Config{
			Idempotency: config.IdempotencyConfig{Backend: "redis", TTL: time.Minute},
			Redis:       config.RedisConfig{Addr: mr.Addr()},
		}

		mw, store, err := NewIdempotency(ctx, cfg, nil, zap.NewNop())
		require.NoError(t, err)
		defer store.Close()

		calls := 0
		h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusCreated)
		}))
		for i := 0; i < 2; i++ {
			req := httptest.NewRequest(http.MethodPost, "/sla-traces/calculate", strings.NewReader(`{}`))
			req.Header.Set(idempotency.HeaderKey, "abc")
			h.ServeHTTP(httptest.NewRecorder(), req)
		}

		assert.Equal(t, 1, calls)
		assert.Len(t, mr.Keys(), 1)
	})
}

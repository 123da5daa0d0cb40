// Package app wires configuration into stores and services shared by the
// server and the CLI.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/samijaber1/aegis-sla/internal/config"
	"github.com/samijaber1/aegis-sla/internal/history"
	"github.com/samijaber1/aegis-sla/internal/idempotency"
	"github.com/samijaber1/aegis-sla/internal/metrics"
	"github.com/samijaber1/aegis-sla/internal/slaconfig"
	"github.com/samijaber1/aegis-sla/internal/slatrace"
	"github.com/samijaber1/aegis-sla/internal/storage"
	"github.com/samijaber1/aegis-sla/internal/storage/postgres"
	"github.com/samijaber1/aegis-sla/internal/storage/sqlite"
	"go.uber.org/zap"
)

// DefaultSchemaFile is the snapshot schema shipped with the repository
const DefaultSchemaFile = "schemas/sla_config_v1.json"

// OpenStore opens the configured storage backend.
// The sqlite backend always applies its schema; postgres only when AutoMigrate is set.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		store, err := sqlite.NewStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("opened sqlite store", zap.String("path", cfg.Path))
		return store, nil

	case "postgres":
		db, err := postgres.Open(ctx, cfg.PostgresDSN(), postgres.PoolOptions{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}

		store := postgres.NewStore(db, logger)
		if cfg.AutoMigrate {
			if err := store.Migrate(ctx); err != nil {
				store.Close()
				return nil, err
			}
		}
		logger.Info("opened postgres store", zap.String("host", cfg.Host), zap.String("database", cfg.Name))
		return store, nil

	default:
		return nil, fmt.Errorf("unknown database driver: %s", cfg.Driver)
	}
}

// NewHistoryService builds the history service, with schema validation when configured
func NewHistoryService(store storage.ConfigVersionStore, cfg config.HistoryConfig, m *metrics.Metrics, logger *zap.Logger) (*history.Service, error) {
	opts := []history.Option{history.WithMetrics(m)}

	if cfg.SnapshotSchema != "" {
		validator, err := slaconfig.NewValidator(cfg.SnapshotSchema)
		if err != nil {
			return nil, err
		}
		opts = append(opts, history.WithValidator(validator))
		logger.Info("snapshot schema validation enabled", zap.String("schema", cfg.SnapshotSchema))
	}

	return history.NewService(store, history.Config{
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	}, logger, opts...), nil
}

// NewTraceService builds the SLA trace service
func NewTraceService(store storage.TraceStore, m *metrics.Metrics, logger *zap.Logger) *slatrace.Service {
	return slatrace.NewService(store, logger, slatrace.WithMetrics(m))
}

// NewIdempotency returns the replay middleware for the configured backend
// and the store to close on shutdown. Both are nil when replay is disabled.
func NewIdempotency(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) (func(http.Handler) http.Handler, idempotency.Store, error) {
	var store idempotency.Store

	switch cfg.Idempotency.Backend {
	case "", "none":
		return nil, nil, nil
	case "memory":
		store = idempotency.NewMemoryStore()
	case "redis":
		redisStore, err := idempotency.NewRedisStore(ctx, idempotency.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		store = redisStore
	default:
		return nil, nil, fmt.Errorf("unknown idempotency backend: %s", cfg.Idempotency.Backend)
	}

	logger.Info("idempotent replay enabled",
		zap.String("backend", cfg.Idempotency.Backend),
		zap.Duration("ttl", cfg.Idempotency.TTL),
	)

	mw := idempotency.NewMiddleware(store, cfg.Idempotency.TTL, m, logger)
	return mw.Handler, store, nil
}

// FindSchemaFile looks for the snapshot schema in common locations
func FindSchemaFile() string {
	candidates := []string{
		DefaultSchemaFile,
		"../" + DefaultSchemaFile,
		"../../" + DefaultSchemaFile,
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

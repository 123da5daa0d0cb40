// Package main provides the entry point for the SLA history and trace server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samijaber1/aegis-sla/internal/api"
	"github.com/samijaber1/aegis-sla/internal/api/middleware"
	"github.com/samijaber1/aegis-sla/internal/app"
	"github.com/samijaber1/aegis-sla/internal/config"
	"github.com/samijaber1/aegis-sla/internal/idempotency"
	"github.com/samijaber1/aegis-sla/internal/logging"
	"github.com/samijaber1/aegis-sla/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, "aegis-sla-server")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting aegis-sla server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("database", cfg.Database.Driver),
		zap.String("idempotency", cfg.Idempotency.Backend),
	)

	store, err := app.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	historySvc, err := app.NewHistoryService(store, cfg.History, m, logger)
	if err != nil {
		return fmt.Errorf("failed to create history service: %w", err)
	}
	traceSvc := app.NewTraceService(store, m, logger)

	replay, replayStore, err := app.NewIdempotency(ctx, cfg, m, logger)
	if err != nil {
		return fmt.Errorf("failed to set up idempotency: %w", err)
	}
	if replayStore != nil {
		defer replayStore.Close()
	}

	opts := api.Options{
		Addr:            cfg.Server.Addr(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		RequestTimeout:  cfg.API.RequestTimeout,
		DefaultPageSize: cfg.API.DefaultPageSize,
		MaxPageSize:     cfg.API.MaxPageSize,
		Idempotency:     replay,
		Metrics:         m,
	}
	if cfg.RateLimiter.Enabled {
		opts.RateLimiter = middleware.NewRateLimiter(cfg.RateLimiter.RequestsPerSecond, cfg.RateLimiter.BurstSize, logger)
	}
	server := api.NewServer(historySvc, traceSvc, store, opts, logger)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler(reg))
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Metrics.Port),
			Handler: mux,
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	if purger, ok := replayStore.(idempotency.Purger); ok {
		janitor := idempotency.NewJanitor(purger, cfg.Idempotency.PurgeInterval, logger)
		g.Go(func() error {
			return janitor.Run(gctx)
		})
	}

	if metricsServer != nil {
		g.Go(func() error {
			logger.Info("starting metrics server",
				zap.String("addr", metricsServer.Addr),
				zap.String("path", cfg.Metrics.Path),
			)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("api server: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics server: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

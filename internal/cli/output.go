package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/samijaber1/aegis-sla/internal/app"
	"github.com/samijaber1/aegis-sla/internal/config"
	"github.com/samijaber1/aegis-sla/internal/logging"
	"github.com/samijaber1/aegis-sla/internal/storage"
	"go.uber.org/zap"
)

// writeJSON writes v as indented JSON
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// newLogger returns a console logger on stderr when verbose, otherwise a no-op
func newLogger(opts *RootOptions) *zap.Logger {
	if !opts.Verbose {
		return zap.NewNop()
	}
	logger, err := logging.New("debug", "console", "aegis-sla-cli")
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// openStore loads the config and opens the configured store
func openStore(ctx context.Context, opts *RootOptions, logger *zap.Logger) (*config.Config, storage.Store, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, err
	}

	store, err := app.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store: %w", err)
	}

	return cfg, store, nil
}

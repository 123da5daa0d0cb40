// Package history records SLA configuration changes as numbered versions,
// each carrying its full snapshot and a diff against the previous version.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samijaber1/aegis-sla/internal/diff"
	"github.com/samijaber1/aegis-sla/internal/metrics"
	"github.com/samijaber1/aegis-sla/internal/storage"
	"go.uber.org/zap"
)

// ErrInvalidInput marks a rejected change request
var ErrInvalidInput = errors.New("invalid input")

// ConflictError is returned when a change still conflicts after all retries
type ConflictError struct {
	ConfigID string
	Attempts int
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("config %s: version conflict after %d attempt(s): %v", e.ConfigID, e.Attempts, e.Err)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// SnapshotValidator checks a snapshot before it is stored
type SnapshotValidator interface {
	Validate(snapshot map[string]any) error
}

// Config controls conflict retries
type Config struct {
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		RetryDelay: 50 * time.Millisecond,
	}
}

// RecordInput is one requested configuration change
type RecordInput struct {
	ConfigID     string
	ChangedBy    string
	NewConfig    map[string]any
	ChangeReason *string
}

// Service records and reads configuration history
type Service struct {
	store     storage.ConfigVersionStore
	validator SnapshotValidator
	metrics   *metrics.Metrics
	logger    *zap.Logger
	config    Config
}

// Option configures a Service
type Option func(*Service)

// WithValidator rejects snapshots that fail v
func WithValidator(v SnapshotValidator) Option {
	return func(s *Service) {
		s.validator = v
	}
}

// WithMetrics records version and conflict counts
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a new history service
func NewService(store storage.ConfigVersionStore, config Config, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		config: config,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordChange appends the next version of a config.
// The latest-version lookup, diff and insert run in one store transaction;
// a conflicting concurrent writer is retried up to MaxRetries times.
func (s *Service) RecordChange(ctx context.Context, in RecordInput) (*storage.ConfigVersion, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	if s.validator != nil {
		if err := s.validator.Validate(in.NewConfig); err != nil {
			return nil, fmt.Errorf("%w: new_config: %v", ErrInvalidInput, err)
		}
	}

	build := func(latest *storage.ConfigVersion) (*storage.NewConfigVersion, error) {
		next := &storage.NewConfigVersion{
			ConfigID:       in.ConfigID,
			Version:        1,
			ChangedBy:      in.ChangedBy,
			ConfigSnapshot: in.NewConfig,
			ChangeReason:   in.ChangeReason,
		}

		var previous map[string]any
		if latest != nil {
			next.Version = latest.Version + 1
			previous = latest.ConfigSnapshot
		}
		next.Diff = diff.Compute(previous, in.NewConfig)

		return next, nil
	}

	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.config.RetryDelay):
			}
		}
		attempts++

		version, err := s.store.AppendVersion(ctx, in.ConfigID, build)
		if err == nil {
			s.metrics.VersionRecorded()
			s.logger.Info("config change recorded",
				zap.String("config_id", version.ConfigID),
				zap.Int("version", version.Version),
				zap.String("changed_by", version.ChangedBy),
				zap.Strings("changed_keys", version.Diff.Keys()),
			)
			return version, nil
		}

		if !errors.Is(err, storage.ErrVersionConflict) {
			return nil, fmt.Errorf("failed to record change for %s: %w", in.ConfigID, err)
		}

		s.metrics.VersionConflict()
		s.logger.Warn("config version conflict, retrying",
			zap.String("config_id", in.ConfigID),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
		lastErr = err
	}

	return nil, &ConflictError{ConfigID: in.ConfigID, Attempts: attempts, Err: lastErr}
}

func validateInput(in RecordInput) error {
	var missing []string
	if strings.TrimSpace(in.ConfigID) == "" {
		missing = append(missing, "config_id")
	}
	if strings.TrimSpace(in.ChangedBy) == "" {
		missing = append(missing, "changed_by")
	}
	if in.NewConfig == nil {
		missing = append(missing, "new_config")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required field(s): %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// GetHistory returns every version of a config, newest first
func (s *Service) GetHistory(ctx context.Context, configID string) ([]storage.ConfigVersion, error) {
	return s.store.ListByConfigID(ctx, configID)
}

// GetVersion returns one version or storage.ErrNotFound
func (s *Service) GetVersion(ctx context.Context, configID string, version int) (*storage.ConfigVersion, error) {
	return s.store.GetVersion(ctx, configID, version)
}

// GetLatest returns the newest version or storage.ErrNotFound
func (s *Service) GetLatest(ctx context.Context, configID string) (*storage.ConfigVersion, error) {
	return s.store.LatestVersion(ctx, configID)
}

// GetChangesByUser returns every version written by changedBy, newest first
func (s *Service) GetChangesByUser(ctx context.Context, changedBy string) ([]storage.ConfigVersion, error) {
	return s.store.ListByChangedBy(ctx, changedBy)
}

// GetAllHistory returns a page of all versions, newest first
func (s *Service) GetAllHistory(ctx context.Context, page storage.Page) ([]storage.ConfigVersion, error) {
	return s.store.ListVersions(ctx, page)
}

// Package postgres implements storage.Store on PostgreSQL via lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/samijaber1/aegis-sla/internal/storage"
	"go.uber.org/zap"
)

// SQLSTATE codes mapped to storage errors
const (
	uniqueViolation       = "23505"
	numericValueOutOfRange = "22003"
)

// PoolOptions controls the connection pool
type PoolOptions struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open creates a PostgreSQL connection pool and verifies it with a ping
func Open(ctx context.Context, dsn string, pool PoolOptions) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Store implements storage.Store using PostgreSQL
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore wraps an open database handle
func NewStore(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Migrate creates the schema
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	s.logger.Info("database schema applied")
	return nil
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const versionColumns = `id, config_id, version, changed_by, changed_at, config_snapshot, diff, change_reason`

// AppendVersion reads the latest version and inserts the next one in one
// transaction holding a per-config advisory lock
func (s *Store) AppendVersion(ctx context.Context, configID string, build storage.VersionBuilder) (*storage.ConfigVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Released automatically at commit or rollback
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, configID); err != nil {
		return nil, fmt.Errorf("failed to lock config %s: %w", configID, err)
	}

	latest, err := latestVersion(ctx, tx, configID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	next, err := build(latest)
	if err != nil {
		return nil, err
	}

	created, err := insertVersion(ctx, tx, next)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, translateError(fmt.Errorf("failed to commit version: %w", err))
	}

	s.logger.Debug("config version appended",
		zap.String("config_id", created.ConfigID),
		zap.Int("version", created.Version),
	)

	return created, nil
}

// InsertVersion inserts a fully numbered version row
func (s *Store) InsertVersion(ctx context.Context, v *storage.NewConfigVersion) (*storage.ConfigVersion, error) {
	return insertVersion(ctx, s.db, v)
}

func insertVersion(ctx context.Context, q querier, v *storage.NewConfigVersion) (*storage.ConfigVersion, error) {
	cols, err := storage.EncodeVersionColumns(v)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO sla_config_versions (config_id, version, changed_by, config_snapshot, diff, change_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + versionColumns

	// JSONB parameters are sent as text; pq would encode []byte as bytea
	row := q.QueryRowContext(ctx, query,
		v.ConfigID,
		v.Version,
		v.ChangedBy,
		string(cols.Snapshot),
		string(cols.Diff),
		v.ChangeReason,
	)

	created, err := scanVersion(row)
	if err != nil {
		return nil, translateError(fmt.Errorf("failed to insert config version: %w", err))
	}
	return created, nil
}

// LatestVersion returns the highest version of a config
func (s *Store) LatestVersion(ctx context.Context, configID string) (*storage.ConfigVersion, error) {
	return latestVersion(ctx, s.db, configID)
}

func latestVersion(ctx context.Context, q querier, configID string) (*storage.ConfigVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM sla_config_versions
		WHERE config_id = $1
		ORDER BY version DESC
		LIMIT 1`

	return scanVersion(q.QueryRowContext(ctx, query, configID))
}

// GetVersion returns one version of a config
func (s *Store) GetVersion(ctx context.Context, configID string, version int) (*storage.ConfigVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM sla_config_versions
		WHERE config_id = $1 AND version = $2`

	return scanVersion(s.db.QueryRowContext(ctx, query, configID, version))
}

// ListByConfigID returns every version of a config, newest first
func (s *Store) ListByConfigID(ctx context.Context, configID string) ([]storage.ConfigVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM sla_config_versions
		WHERE config_id = $1
		ORDER BY version DESC`

	return s.queryVersions(ctx, query, configID)
}

// ListByChangedBy returns every version written by an actor, newest first
func (s *Store) ListByChangedBy(ctx context.Context, changedBy string) ([]storage.ConfigVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM sla_config_versions
		WHERE changed_by = $1
		ORDER BY changed_at DESC, version DESC`

	return s.queryVersions(ctx, query, changedBy)
}

// ListVersions returns a page of all versions, newest first
func (s *Store) ListVersions(ctx context.Context, page storage.Page) ([]storage.ConfigVersion, error) {
	page = page.Normalize()
	query := `SELECT ` + versionColumns + ` FROM sla_config_versions
		ORDER BY changed_at DESC, version DESC
		LIMIT $1 OFFSET $2`

	return s.queryVersions(ctx, query, page.Limit, page.Offset)
}

func (s *Store) queryVersions(ctx context.Context, query string, args ...any) ([]storage.ConfigVersion, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query config versions: %w", err)
	}
	defer rows.Close()

	versions := []storage.ConfigVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return versions, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVersion(row scanner) (*storage.ConfigVersion, error) {
	var v storage.ConfigVersion
	var snapshotJSON, diffJSON []byte
	var reason sql.NullString

	err := row.Scan(
		&v.ID,
		&v.ConfigID,
		&v.Version,
		&v.ChangedBy,
		&v.ChangedAt,
		&snapshotJSON,
		&diffJSON,
		&reason,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan config version: %w", err)
	}

	if reason.Valid {
		v.ChangeReason = &reason.String
	}

	if err := storage.DecodeVersionColumns(&v, snapshotJSON, diffJSON); err != nil {
		return nil, err
	}

	return &v, nil
}

const traceColumns = `id, incident_id, severity, threshold_minutes, mttr_minutes, decision_branch, sla_breached, trace_payload, created_at`

// InsertTrace persists an SLA calculation trace
func (s *Store) InsertTrace(ctx context.Context, t *storage.NewSlaTrace) (*storage.SlaTrace, error) {
	payloadJSON, err := storage.EncodeTracePayload(t.TracePayload)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO sla_calculation_traces
			(incident_id, severity, threshold_minutes, mttr_minutes, decision_branch, sla_breached, trace_payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + traceColumns

	row := s.db.QueryRowContext(ctx, query,
		t.IncidentID,
		t.Severity,
		t.ThresholdMinutes,
		t.MTTRMinutes,
		string(t.DecisionBranch),
		t.SLABreached,
		string(payloadJSON),
	)

	created, err := scanTrace(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert trace: %w", translateError(err))
	}
	return created, nil
}

// GetTrace returns one trace by id
func (s *Store) GetTrace(ctx context.Context, id string) (*storage.SlaTrace, error) {
	query := `SELECT ` + traceColumns + ` FROM sla_calculation_traces WHERE id = $1`
	return scanTrace(s.db.QueryRowContext(ctx, query, id))
}

// ListByIncident returns every trace of an incident, newest first
func (s *Store) ListByIncident(ctx context.Context, incidentID string) ([]storage.SlaTrace, error) {
	query := `SELECT ` + traceColumns + ` FROM sla_calculation_traces
		WHERE incident_id = $1
		ORDER BY created_at DESC`

	return s.queryTraces(ctx, query, incidentID)
}

// ListTraces returns a page of all traces, newest first
func (s *Store) ListTraces(ctx context.Context, page storage.Page) ([]storage.SlaTrace, error) {
	page = page.Normalize()
	query := `SELECT ` + traceColumns + ` FROM sla_calculation_traces
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	return s.queryTraces(ctx, query, page.Limit, page.Offset)
}

func (s *Store) queryTraces(ctx context.Context, query string, args ...any) ([]storage.SlaTrace, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query traces: %w", err)
	}
	defer rows.Close()

	traces := []storage.SlaTrace{}
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		traces = append(traces, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return traces, nil
}

func scanTrace(row scanner) (*storage.SlaTrace, error) {
	var t storage.SlaTrace
	var branch string
	var payloadJSON []byte

	err := row.Scan(
		&t.ID,
		&t.IncidentID,
		&t.Severity,
		&t.ThresholdMinutes,
		&t.MTTRMinutes,
		&branch,
		&t.SLABreached,
		&payloadJSON,
		&t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan trace: %w", err)
	}

	if err := storage.DecodeTraceColumns(&t, branch, payloadJSON); err != nil {
		return nil, err
	}

	return &t, nil
}

// translateError maps unique_violation to storage.ErrVersionConflict and
// numeric_value_out_of_range to storage.ErrValueOutOfRange
func translateError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case uniqueViolation:
		return fmt.Errorf("%w: %v", storage.ErrVersionConflict, err)
	case numericValueOutOfRange:
		return fmt.Errorf("%w: %v", storage.ErrValueOutOfRange, err)
	}
	return err
}

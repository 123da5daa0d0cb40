package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/samijaber1/aegis-sla/internal/storage"
)

// Store implements storage.Store using SQLite
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the clock used for changed_at and created_at
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new SQLite storage with the given database path.
// Write transactions start with BEGIN IMMEDIATE so version assignment is
// serialized across connections.
func NewStore(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", buildDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to :memory: is a separate database
	if strings.Contains(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func buildDSN(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"
}

// Migrate creates the schema
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const versionColumns = `id, config_id, version, changed_by, changed_at, config_snapshot, diff, change_reason`

// AppendVersion reads the latest version and inserts the next one in one
// IMMEDIATE transaction
func (s *Store) AppendVersion(ctx context.Context, configID string, build storage.VersionBuilder) (*storage.ConfigVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	latest, err := latestVersion(ctx, tx, configID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	next, err := build(latest)
	if err != nil {
		return nil, err
	}

	created, err := s.insertVersion(ctx, tx, next)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, translateError(fmt.Errorf("failed to commit version: %w", err))
	}

	return created, nil
}

// InsertVersion inserts a fully numbered version row
func (s *Store) InsertVersion(ctx context.Context, v *storage.NewConfigVersion) (*storage.ConfigVersion, error) {
	return s.insertVersion(ctx, s.db, v)
}

func (s *Store) insertVersion(ctx context.Context, q querier, v *storage.NewConfigVersion) (*storage.ConfigVersion, error) {
	cols, err := storage.EncodeVersionColumns(v)
	if err != nil {
		return nil, err
	}

	created := &storage.ConfigVersion{
		ID:           uuid.New().String(),
		ConfigID:     v.ConfigID,
		Version:      v.Version,
		ChangedBy:    v.ChangedBy,
		ChangedAt:    s.now().UTC(),
		ChangeReason: v.ChangeReason,
	}

	query := `
		INSERT INTO sla_config_versions (` + versionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = q.ExecContext(ctx, query,
		created.ID,
		created.ConfigID,
		created.Version,
		created.ChangedBy,
		created.ChangedAt,
		string(cols.Snapshot),
		string(cols.Diff),
		created.ChangeReason,
	)
	if err != nil {
		return nil, translateError(fmt.Errorf("failed to insert config version: %w", err))
	}

	if err := storage.DecodeVersionColumns(created, cols.Snapshot, cols.Diff); err != nil {
		return nil, err
	}

	return created, nil
}

// LatestVersion returns the highest version of a config
func (s *Store) LatestVersion(ctx context.Context, configID string) (*storage.ConfigVersion, error) {
	return latestVersion(ctx, s.db, configID)
}

func latestVersion(ctx context.Context, q querier, configID string) (*storage.ConfigVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM sla_config_versions
		WHERE config_id = ?
		ORDER BY version DESC
		LIMIT 1`

	return scanVersion(q.QueryRowContext(ctx, query, configID))
}

// GetVersion returns one version of a config
func (s *Store) GetVersion(ctx context.Context, configID string, version int) (*storage.ConfigVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM sla_config_versions
		WHERE config_id = ? AND version = ?`

	return scanVersion(s.db.QueryRowContext(ctx, query, configID, version))
}

// ListByConfigID returns every version of a config, newest first
func (s *Store) ListByConfigID(ctx context.Context, configID string) ([]storage.ConfigVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM sla_config_versions
		WHERE config_id = ?
		ORDER BY version DESC`

	return s.queryVersions(ctx, query, configID)
}

// ListByChangedBy returns every version written by an actor, newest first
func (s *Store) ListByChangedBy(ctx context.Context, changedBy string) ([]storage.ConfigVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM sla_config_versions
		WHERE changed_by = ?
		ORDER BY changed_at DESC, rowid DESC`

	return s.queryVersions(ctx, query, changedBy)
}

// ListVersions returns a page of all versions, newest first
func (s *Store) ListVersions(ctx context.Context, page storage.Page) ([]storage.ConfigVersion, error) {
	page = page.Normalize()
	query := `SELECT ` + versionColumns + ` FROM sla_config_versions
		ORDER BY changed_at DESC, rowid DESC
		LIMIT ? OFFSET ?`

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

	created := &storage.SlaTrace{
		ID:               uuid.New().String(),
		IncidentID:       t.IncidentID,
		Severity:         t.Severity,
		ThresholdMinutes: t.ThresholdMinutes,
		MTTRMinutes:      t.MTTRMinutes,
		DecisionBranch:   t.DecisionBranch,
		SLABreached:      t.SLABreached,
		TracePayload:     t.TracePayload,
		CreatedAt:        s.now().UTC(),
	}

	query := `
		INSERT INTO sla_calculation_traces (` + traceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		created.ID,
		created.IncidentID,
		created.Severity,
		created.ThresholdMinutes,
		created.MTTRMinutes,
		string(created.DecisionBranch),
		created.SLABreached,
		string(payloadJSON),
		created.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert trace: %w", err)
	}

	return created, nil
}

// GetTrace returns one trace by id
func (s *Store) GetTrace(ctx context.Context, id string) (*storage.SlaTrace, error) {
	query := `SELECT ` + traceColumns + ` FROM sla_calculation_traces WHERE id = ?`
	return scanTrace(s.db.QueryRowContext(ctx, query, id))
}

// ListByIncident returns every trace of an incident, newest first
func (s *Store) ListByIncident(ctx context.Context, incidentID string) ([]storage.SlaTrace, error) {
	query := `SELECT ` + traceColumns + ` FROM sla_calculation_traces
		WHERE incident_id = ?
		ORDER BY created_at DESC, rowid DESC`

	return s.queryTraces(ctx, query, incidentID)
}

// ListTraces returns a page of all traces, newest first
func (s *Store) ListTraces(ctx context.Context, page storage.Page) ([]storage.SlaTrace, error) {
	page = page.Normalize()
	query := `SELECT ` + traceColumns + ` FROM sla_calculation_traces
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`

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

// translateError maps unique violations on (config_id, version) to
// storage.ErrVersionConflict
func translateError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%w: %v", storage.ErrVersionConflict, err)
	}
	return err
}

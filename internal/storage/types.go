package storage

import (
	"context"
	"errors"
	"time"

	"github.com/samijaber1/aegis-sla/internal/diff"
	"github.com/samijaber1/aegis-sla/internal/sla"
)

var (
	// ErrNotFound is returned when a version or trace does not exist
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict is returned when another writer already holds the
	// (config_id, version) pair. Callers may retry.
	ErrVersionConflict = errors.New("config version conflict")

	// ErrValueOutOfRange is returned when a numeric value does not fit its
	// column, e.g. minutes beyond NUMERIC(10,2) on postgres
	ErrValueOutOfRange = errors.New("value out of range")
)

// DefaultPageLimit is used when a Page carries no limit
const DefaultPageLimit = 50

// Page bounds a list query
type Page struct {
	Limit  int
	Offset int
}

// Normalize fills in defaults for unset or negative fields
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ConfigVersion is one immutable snapshot of an SLA configuration
type ConfigVersion struct {
	ID             string         `json:"id"`
	ConfigID       string         `json:"config_id"`
	Version        int            `json:"version"`
	ChangedBy      string         `json:"changed_by"`
	ChangedAt      time.Time      `json:"changed_at"`
	ConfigSnapshot map[string]any `json:"config_snapshot"`
	Diff           diff.Diff      `json:"diff"`
	ChangeReason   *string        `json:"change_reason"`
}

// NewConfigVersion holds the caller-supplied fields of a version row.
// ID and ChangedAt are assigned by the store.
type NewConfigVersion struct {
	ConfigID       string
	Version        int
	ChangedBy      string
	ConfigSnapshot map[string]any
	Diff           diff.Diff
	ChangeReason   *string
}

// VersionBuilder derives the next version from the current latest one.
// latest is nil when the config has no history yet.
type VersionBuilder func(latest *ConfigVersion) (*NewConfigVersion, error)

// SlaTrace is one immutable record of an SLA evaluation
type SlaTrace struct {
	ID               string           `json:"id"`
	IncidentID       string           `json:"incident_id"`
	Severity         string           `json:"severity"`
	ThresholdMinutes float64          `json:"threshold_minutes"`
	MTTRMinutes      float64          `json:"mttr_minutes"`
	DecisionBranch   sla.Branch       `json:"decision_branch"`
	SLABreached      bool             `json:"sla_breached"`
	TracePayload     sla.TracePayload `json:"trace_payload"`
	CreatedAt        time.Time        `json:"created_at"`
}

// NewSlaTrace holds the caller-supplied fields of a trace row.
// ID and CreatedAt are assigned by the store.
type NewSlaTrace struct {
	IncidentID       string
	Severity         string
	ThresholdMinutes float64
	MTTRMinutes      float64
	DecisionBranch   sla.Branch
	SLABreached      bool
	TracePayload     sla.TracePayload
}

// ConfigVersionStore persists configuration history
type ConfigVersionStore interface {
	// AppendVersion looks up the latest version and inserts the row returned
	// by build inside a single transaction that is serialized per config.
	AppendVersion(ctx context.Context, configID string, build VersionBuilder) (*ConfigVersion, error)

	// InsertVersion inserts a fully numbered version row.
	// Returns ErrVersionConflict if the version already exists.
	InsertVersion(ctx context.Context, v *NewConfigVersion) (*ConfigVersion, error)

	// LatestVersion returns the highest version or ErrNotFound
	LatestVersion(ctx context.Context, configID string) (*ConfigVersion, error)

	// GetVersion returns one version or ErrNotFound
	GetVersion(ctx context.Context, configID string, version int) (*ConfigVersion, error)

	// ListByConfigID returns all versions of a config, newest version first
	ListByConfigID(ctx context.Context, configID string) ([]ConfigVersion, error)

	// ListByChangedBy returns all versions written by an actor, newest first
	ListByChangedBy(ctx context.Context, changedBy string) ([]ConfigVersion, error)

	// ListVersions returns a page of all versions, newest first
	ListVersions(ctx context.Context, page Page) ([]ConfigVersion, error)
}

// TraceStore persists SLA calculation traces
type TraceStore interface {
	InsertTrace(ctx context.Context, t *NewSlaTrace) (*SlaTrace, error)

	// GetTrace returns one trace or ErrNotFound
	GetTrace(ctx context.Context, id string) (*SlaTrace, error)

	// ListByIncident returns all traces of an incident, newest first
	ListByIncident(ctx context.Context, incidentID string) ([]SlaTrace, error)

	// ListTraces returns a page of all traces, newest first
	ListTraces(ctx context.Context, page Page) ([]SlaTrace, error)
}

// Store is a complete storage backend
type Store interface {
	ConfigVersionStore
	TraceStore

	// Migrate creates tables and indexes if they do not exist
	Migrate(ctx context.Context) error

	// Ping checks the connection
	Ping(ctx context.Context) error

	// Close closes the storage connection
	Close() error
}

package sqlite

// Schema defines the SQLite database schema
const Schema = `
-- Config version history (append only)
CREATE TABLE IF NOT EXISTS sla_config_versions (
	id TEXT PRIMARY KEY,
	config_id TEXT NOT NULL,
	version INTEGER NOT NULL CHECK (version > 0),
	changed_by TEXT NOT NULL,
	changed_at TIMESTAMP NOT NULL,
	config_snapshot TEXT NOT NULL,
	diff TEXT NOT NULL DEFAULT '{}',
	change_reason TEXT,
	UNIQUE (config_id, version)
);

CREATE INDEX IF NOT EXISTS idx_sla_config_versions_config_id ON sla_config_versions(config_id);
CREATE INDEX IF NOT EXISTS idx_sla_config_versions_changed_at ON sla_config_versions(changed_at DESC);
CREATE INDEX IF NOT EXISTS idx_sla_config_versions_changed_by ON sla_config_versions(changed_by);

-- SLA calculation traces (append only)
CREATE TABLE IF NOT EXISTS sla_calculation_traces (
	id TEXT PRIMARY KEY,
	incident_id TEXT NOT NULL,
	severity TEXT NOT NULL,
	threshold_minutes REAL NOT NULL,
	mttr_minutes REAL NOT NULL,
	decision_branch TEXT NOT NULL,
	sla_breached BOOLEAN NOT NULL DEFAULT 0,
	trace_payload TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sla_traces_incident_id ON sla_calculation_traces(incident_id);
CREATE INDEX IF NOT EXISTS idx_sla_traces_created_at ON sla_calculation_traces(created_at DESC);
`

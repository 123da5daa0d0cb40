package postgres

// Schema defines the PostgreSQL database schema
const Schema = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS sla_config_versions (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	config_id VARCHAR(255) NOT NULL,
	version INTEGER NOT NULL CHECK (version > 0),
	changed_by VARCHAR(255) NOT NULL,
	changed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	config_snapshot JSONB NOT NULL,
	diff JSONB NOT NULL DEFAULT '{}'::jsonb,
	change_reason TEXT,
	CONSTRAINT uq_sla_config_versions_config_version UNIQUE (config_id, version)
);

CREATE INDEX IF NOT EXISTS idx_sla_config_versions_config_id ON sla_config_versions(config_id);
CREATE INDEX IF NOT EXISTS idx_sla_config_versions_changed_at ON sla_config_versions(changed_at DESC);
CREATE INDEX IF NOT EXISTS idx_sla_config_versions_changed_by ON sla_config_versions(changed_by);

CREATE TABLE IF NOT EXISTS sla_calculation_traces (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	incident_id VARCHAR(255) NOT NULL,
	severity VARCHAR(100) NOT NULL,
	threshold_minutes NUMERIC(10,2) NOT NULL,
	mttr_minutes NUMERIC(10,2) NOT NULL,
	decision_branch VARCHAR(100) NOT NULL,
	sla_breached BOOLEAN NOT NULL DEFAULT FALSE,
	trace_payload JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_sla_traces_incident_id ON sla_calculation_traces(incident_id);
CREATE INDEX IF NOT EXISTS idx_sla_traces_created_at ON sla_calculation_traces(created_at DESC);
`

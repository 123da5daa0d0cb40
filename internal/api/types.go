package api

import (
	"encoding/json"
)

// RecordChangeRequest is the body of POST /sla-config-history
type RecordChangeRequest struct {
	ConfigID     string          `json:"config_id"`
	ChangedBy    string          `json:"changed_by"`
	NewConfig    json.RawMessage `json:"new_config"`
	ChangeReason *string         `json:"change_reason,omitempty"`
}

// CalculateRequest is the body of POST /sla-traces/calculate.
// Timestamps are RFC 3339.
type CalculateRequest struct {
	IncidentID       string   `json:"incident_id"`
	Severity         string   `json:"severity"`
	ThresholdMinutes *float64 `json:"threshold_minutes"`
	OpenedAt         string   `json:"opened_at"`
	ResolvedAt       *string  `json:"resolved_at,omitempty"`
}

// DataResponse wraps a single result
type DataResponse struct {
	Data any `json:"data"`
}

// PageResponse wraps a paginated list
type PageResponse struct {
	Data   any `json:"data"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse represents readiness check response
type ReadyResponse struct {
	Ready   bool     `json:"ready"`
	Reasons []string `json:"reasons,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

package sla

import (
	"fmt"
	"time"
)

// Branch names the outcome of an SLA evaluation
type Branch string

const (
	BranchUnresolvedElapsedTime Branch = "UNRESOLVED_ELAPSED_TIME"
	BranchInvalidNegativeMTTR   Branch = "INVALID_NEGATIVE_MTTR"
	BranchWithinThreshold       Branch = "WITHIN_SLA_THRESHOLD"
	BranchExceededThreshold     Branch = "EXCEEDED_SLA_THRESHOLD"
)

// Branches lists every reachable branch
var Branches = []Branch{
	BranchUnresolvedElapsedTime,
	BranchInvalidNegativeMTTR,
	BranchWithinThreshold,
	BranchExceededThreshold,
}

// Valid reports whether b is one of the known branches
func (b Branch) Valid() bool {
	for _, known := range Branches {
		if b == known {
			return true
		}
	}
	return false
}

// ParseBranch converts a stored branch name back into a Branch
func ParseBranch(s string) (Branch, error) {
	b := Branch(s)
	if !b.Valid() {
		return "", fmt.Errorf("unknown decision branch %q", s)
	}
	return b, nil
}

// Input holds the incident timing data for one evaluation
type Input struct {
	IncidentID       string
	Severity         string
	ThresholdMinutes float64
	OpenedAt         time.Time
	ResolvedAt       *time.Time
}

// Result is the outcome of one evaluation
type Result struct {
	// ElapsedMinutes is the unrounded elapsed time used for branch selection
	ElapsedMinutes float64
	// MTTRMinutes is ElapsedMinutes rounded to two decimals
	MTTRMinutes float64
	Branch      Branch
	SLABreached bool
	Reason      string
	Payload     TracePayload
}

// TracePayload is the persisted explanation of an evaluation
type TracePayload struct {
	Inputs      TraceInputs      `json:"inputs"`
	Computation TraceComputation `json:"computation"`
	Decision    TraceDecision    `json:"decision"`
}

// TraceInputs records the evaluation inputs; timestamps are ISO-8601 UTC
type TraceInputs struct {
	IncidentID       string  `json:"incident_id"`
	Severity         string  `json:"severity"`
	ThresholdMinutes float64 `json:"threshold_minutes"`
	OpenedAt         string  `json:"opened_at"`
	ResolvedAt       *string `json:"resolved_at"`
}

// TraceComputation records the derived numbers
type TraceComputation struct {
	MTTRMinutes       float64 `json:"mttr_minutes"`
	ThresholdMinutes  float64 `json:"threshold_minutes"`
	DifferenceMinutes float64 `json:"difference_minutes"`
}

// TraceDecision records the branch taken
type TraceDecision struct {
	Branch      Branch `json:"branch"`
	SLABreached bool   `json:"sla_breached"`
	EvaluatedAt string `json:"evaluated_at"`
}

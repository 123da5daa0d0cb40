// Package sla classifies incident resolution times against an SLA threshold
// and produces a trace payload that explains the decision.
package sla

import (
	"fmt"
	"math"
	"time"
)

// TimestampFormat is the ISO-8601 layout used inside trace payloads
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Engine evaluates incident timings and produces SLA decisions
type Engine struct {
	now func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the wall clock used for unresolved incidents
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a new SLA engine
func NewEngine(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate classifies the input into exactly one branch.
// The clock is read once and used for both the elapsed time of an
// unresolved incident and the evaluated_at stamp.
func (e *Engine) Evaluate(in Input) *Result {
	now := e.now()
	result := &Result{}

	if in.ResolvedAt == nil {
		result.ElapsedMinutes = elapsedMinutes(in.OpenedAt, now)
		result.Branch = BranchUnresolvedElapsedTime
		result.SLABreached = result.ElapsedMinutes > in.ThresholdMinutes
		result.Reason = fmt.Sprintf("incident unresolved: elapsed=%.2fm, threshold=%.2fm", result.ElapsedMinutes, in.ThresholdMinutes)
	} else {
		result.ElapsedMinutes = elapsedMinutes(in.OpenedAt, *in.ResolvedAt)

		switch {
		case result.ElapsedMinutes <= 0:
			// Resolved at or before opened: data-quality outcome, never a breach
			result.Branch = BranchInvalidNegativeMTTR
			result.SLABreached = false
			result.Reason = fmt.Sprintf("resolved_at is not after opened_at: mttr=%.2fm", result.ElapsedMinutes)
		case result.ElapsedMinutes <= in.ThresholdMinutes:
			result.Branch = BranchWithinThreshold
			result.SLABreached = false
			result.Reason = fmt.Sprintf("mttr=%.2fm within threshold=%.2fm", result.ElapsedMinutes, in.ThresholdMinutes)
		default:
			result.Branch = BranchExceededThreshold
			result.SLABreached = true
			result.Reason = fmt.Sprintf("mttr=%.2fm exceeded threshold=%.2fm", result.ElapsedMinutes, in.ThresholdMinutes)
		}
	}

	result.MTTRMinutes = Round2(result.ElapsedMinutes)
	result.Payload = buildPayload(in, result, now)

	return result
}

func buildPayload(in Input, result *Result, evaluatedAt time.Time) TracePayload {
	var resolvedAt *string
	if in.ResolvedAt != nil {
		s := FormatTimestamp(*in.ResolvedAt)
		resolvedAt = &s
	}

	return TracePayload{
		Inputs: TraceInputs{
			IncidentID:       in.IncidentID,
			Severity:         in.Severity,
			ThresholdMinutes: in.ThresholdMinutes,
			OpenedAt:         FormatTimestamp(in.OpenedAt),
			ResolvedAt:       resolvedAt,
		},
		Computation: TraceComputation{
			MTTRMinutes:       Round2(result.ElapsedMinutes),
			ThresholdMinutes:  in.ThresholdMinutes,
			DifferenceMinutes: Round2(result.ElapsedMinutes - in.ThresholdMinutes),
		},
		Decision: TraceDecision{
			Branch:      result.Branch,
			SLABreached: result.SLABreached,
			EvaluatedAt: FormatTimestamp(evaluatedAt),
		},
	}
}

// elapsedMinutes is the millisecond difference divided by 60000
func elapsedMinutes(from, to time.Time) float64 {
	return float64(to.Sub(from).Milliseconds()) / 60000
}

// Round2 rounds to two decimal places, half away from zero
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// FormatTimestamp renders t in UTC with millisecond precision
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// Package slatrace evaluates incidents against their SLA threshold and
// persists every decision as an auditable trace.
package slatrace

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samijaber1/aegis-sla/internal/metrics"
	"github.com/samijaber1/aegis-sla/internal/sla"
	"github.com/samijaber1/aegis-sla/internal/storage"
	"go.uber.org/zap"
)

// ErrInvalidInput marks a rejected calculation request
var ErrInvalidInput = errors.New("invalid input")

// Calculation is the result of one persisted evaluation
type Calculation struct {
	MTTRMinutes    float64           `json:"mttr_minutes"`
	DecisionBranch sla.Branch        `json:"decision_branch"`
	SLABreached    bool              `json:"sla_breached"`
	Trace          *storage.SlaTrace `json:"trace"`
}

// Service evaluates and records SLA decisions
type Service struct {
	store   storage.TraceStore
	engine  *sla.Engine
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// Option configures a Service
type Option func(*Service)

// WithEngine replaces the default engine, typically to pin its clock
func WithEngine(e *sla.Engine) Option {
	return func(s *Service) {
		s.engine = e
	}
}

// WithMetrics counts evaluations by branch
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a new trace service.
// store may be nil when the service is only used for Preview.
func NewService(store storage.TraceStore, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		engine: sla.NewEngine(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Preview evaluates the input without persisting anything
func (s *Service) Preview(in sla.Input) *sla.Result {
	return s.engine.Evaluate(in)
}

// Calculate evaluates the input and stores the resulting trace
func (s *Service) Calculate(ctx context.Context, in sla.Input) (*Calculation, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	result := s.engine.Evaluate(in)

	trace, err := s.store.InsertTrace(ctx, &storage.NewSlaTrace{
		IncidentID:       in.IncidentID,
		Severity:         in.Severity,
		ThresholdMinutes: in.ThresholdMinutes,
		MTTRMinutes:      result.MTTRMinutes,
		DecisionBranch:   result.Branch,
		SLABreached:      result.SLABreached,
		TracePayload:     result.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store trace for incident %s: %w", in.IncidentID, err)
	}
	s.metrics.Evaluation(string(result.Branch), result.SLABreached)

	s.logger.Info("sla evaluated",
		zap.String("incident_id", in.IncidentID),
		zap.String("severity", in.Severity),
		zap.String("branch", string(result.Branch)),
		zap.Bool("sla_breached", result.SLABreached),
		zap.Float64("mttr_minutes", result.MTTRMinutes),
		zap.String("trace_id", trace.ID),
	)

	return &Calculation{
		MTTRMinutes:    result.MTTRMinutes,
		DecisionBranch: result.Branch,
		SLABreached:    result.SLABreached,
		Trace:          trace,
	}, nil
}

func validateInput(in sla.Input) error {
	var missing []string
	if strings.TrimSpace(in.IncidentID) == "" {
		missing = append(missing, "incident_id")
	}
	if strings.TrimSpace(in.Severity) == "" {
		missing = append(missing, "severity")
	}
	if in.OpenedAt.IsZero() {
		missing = append(missing, "opened_at")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required field(s): %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	return nil
}

// GetTrace returns one trace or storage.ErrNotFound
func (s *Service) GetTrace(ctx context.Context, id string) (*storage.SlaTrace, error) {
	return s.store.GetTrace(ctx, id)
}

// ListByIncident returns every trace of an incident, newest first
func (s *Service) ListByIncident(ctx context.Context, incidentID string) ([]storage.SlaTrace, error) {
	return s.store.ListByIncident(ctx, incidentID)
}

// ListAll returns a page of traces, newest first
func (s *Service) ListAll(ctx context.Context, page storage.Page) ([]storage.SlaTrace, error) {
	return s.store.ListTraces(ctx, page)
}

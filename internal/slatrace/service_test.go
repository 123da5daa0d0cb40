package slatrace

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samijaber1/aegis-sla/internal/metrics"
	"github.com/samijaber1/aegis-sla/internal/sla"
	"github.com/samijaber1/aegis-sla/internal/storage"
	"github.com/samijaber1/aegis-sla/internal/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()

	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "traces.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := sla.NewEngine(sla.WithClock(func() time.Time { return fixedNow }))
	opts = append([]Option{WithEngine(engine)}, opts...)
	return NewService(store, zap.NewNop(), opts...)
}

func resolvedInput(incidentID string, threshold float64, opened, resolved time.Time) sla.Input {
	return sla.Input{
		IncidentID:       incidentID,
		Severity:         "P1",
		ThresholdMinutes: threshold,
		OpenedAt:         opened,
		ResolvedAt:       &resolved,
	}
}

func TestCalculate_PersistsTrace(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	opened := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	calc, err := svc.Calculate(ctx, resolvedInput("INC-1042", 30, opened, opened.Add(45*time.Minute+30*time.Second)))
	require.NoError(t, err)

	assert.Equal(t, 45.5, calc.MTTRMinutes)
	assert.Equal(t, sla.BranchExceededThreshold, calc.DecisionBranch)
	assert.True(t, calc.SLABreached)
	require.NotNil(t, calc.Trace)
	assert.NotEmpty(t, calc.Trace.ID)
	assert.Equal(t, 15.5, calc.Trace.TracePayload.Computation.DifferenceMinutes)

	stored, err := svc.GetTrace(ctx, calc.Trace.ID)
	require.NoError(t, err)
	assert.Equal(t, calc.Trace.ID, stored.ID)
	assert.Equal(t, calc.MTTRMinutes, stored.MTTRMinutes)
	assert.Equal(t, calc.Trace.TracePayload, stored.TracePayload)
}

func TestCalculate_Branches(t *testing.T) {
	svc := newTestService(t)
	opened := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		input    sla.Input
		branch   sla.Branch
		breached bool
	}{
		{
			name:   "within at boundary",
			input:  resolvedInput("INC-1", 30, opened, opened.Add(30*time.Minute)),
			branch: sla.BranchWithinThreshold,
		},
		{
			name:     "just over threshold",
			input:    resolvedInput("INC-2", 30, opened, opened.Add(30*time.Minute+600*time.Millisecond)),
			branch:   sla.BranchExceededThreshold,
			breached: true,
		},
		{
			name:   "resolved before opened",
			input:  resolvedInput("INC-3", 30, opened, opened.Add(-time.Minute)),
			branch: sla.BranchInvalidNegativeMTTR,
		},
		{
			name: "unresolved past threshold",
			input: sla.Input{
				IncidentID:       "INC-4",
				Severity:         "P2",
				ThresholdMinutes: 15,
				OpenedAt:         opened,
			},
			branch:   sla.BranchUnresolvedElapsedTime,
			breached: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calc, err := svc.Calculate(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.branch, calc.DecisionBranch)
			assert.Equal(t, tt.breached, calc.SLABreached)
			assert.Equal(t, tt.branch, calc.Trace.TracePayload.Decision.Branch)
		})
	}
}

func TestCalculate_MissingFields(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Calculate(context.Background(), sla.Input{ThresholdMinutes: 30})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
	for _, field := range []string{"incident_id", "severity", "opened_at"} {
		assert.Contains(t, err.Error(), field)
	}

	traces, err := svc.ListAll(context.Background(), storage.Page{})
	require.NoError(t, err)
	assert.Empty(t, traces)
}

func TestCalculate_CountsEvaluations(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := newTestService(t, WithMetrics(metrics.New(reg)))
	opened := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := svc.Calculate(context.Background(), resolvedInput("INC-1", 30, opened, opened.Add(10*time.Minute)))
	require.NoError(t, err)

	expected := `
# HELP aegis_sla_evaluations_total Total number of SLA evaluations by decision branch
# TYPE aegis_sla_evaluations_total counter
aegis_sla_evaluations_total{branch="WITHIN_SLA_THRESHOLD",breached="false"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "aegis_sla_evaluations_total"))
}

type failingTraceStore struct {
	storage.TraceStore
}

func (failingTraceStore) InsertTrace(context.Context, *storage.NewSlaTrace) (*storage.SlaTrace, error) {
	return nil, errors.New("disk full")
}

func TestCalculate_StoreFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := NewService(failingTraceStore{}, zap.NewNop(), WithMetrics(metrics.New(reg)))
	opened := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := svc.Calculate(context.Background(), resolvedInput("INC-9", 30, opened, opened.Add(time.Minute)))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "INC-9")

	count, err := testutil.GatherAndCount(reg, "aegis_sla_evaluations_total")
	require.NoError(t, err)
	assert.Zero(t, count, "an unstored evaluation must not be counted")
}

func TestPreview_DoesNotPersist(t *testing.T) {
	svc := newTestService(t)
	opened := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	result := svc.Preview(resolvedInput("INC-5", 30, opened, opened.Add(12*time.Minute)))
	assert.Equal(t, sla.BranchWithinThreshold, result.Branch)
	assert.Equal(t, 12.0, result.MTTRMinutes)

	traces, err := svc.ListByIncident(context.Background(), "INC-5")
	require.NoError(t, err)
	assert.Empty(t, traces)
}

func TestListByIncident(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	opened := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for _, minutes := range []int{5, 50} {
		_, err := svc.Calculate(ctx, resolvedInput("INC-7", 30, opened, opened.Add(time.Duration(minutes)*time.Minute)))
		require.NoError(t, err)
	}
	_, err := svc.Calculate(ctx, resolvedInput("INC-8", 30, opened, opened.Add(time.Minute)))
	require.NoError(t, err)

	traces, err := svc.ListByIncident(ctx, "INC-7")
	require.NoError(t, err)
	require.Len(t, traces, 2)
	assert.Equal(t, 50.0, traces[0].MTTRMinutes)

	all, err := svc.ListAll(ctx, storage.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.GetTrace(ctx, "does-not-exist")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

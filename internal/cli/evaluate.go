package cli

import (
	"fmt"
	"time"

	"github.com/samijaber1/aegis-sla/internal/sla"
	"github.com/samijaber1/aegis-sla/internal/slatrace"
	"github.com/spf13/cobra"
)

type evaluateOptions struct {
	incidentID string
	severity   string
	threshold  float64
	openedAt   string
	resolvedAt string
	now        string
	persist    bool
}

// NewEvaluateCommand creates the evaluate command.
func NewEvaluateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &evaluateOptions{}

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Decide whether an incident breached its SLA",
		Long: `Evaluate an incident against its SLA threshold and print the decision
trace. Nothing is stored unless --persist is given.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.incidentID, "incident", "", "incident id (required)")
	cmd.Flags().StringVar(&opts.severity, "severity", "", "incident severity (required)")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "SLA threshold in minutes (required)")
	cmd.Flags().StringVar(&opts.openedAt, "opened-at", "", "RFC 3339 open time (required)")
	cmd.Flags().StringVar(&opts.resolvedAt, "resolved-at", "", "RFC 3339 resolve time; omit for an open incident")
	cmd.Flags().StringVar(&opts.now, "now", "", "RFC 3339 evaluation time (default current time)")
	cmd.Flags().BoolVar(&opts.persist, "persist", false, "store the trace in the configured database")

	for _, name := range []string{"incident", "severity", "threshold", "opened-at"} {
		cmd.MarkFlagRequired(name)
	}

	return cmd
}

func runEvaluate(cmd *cobra.Command, rootOpts *RootOptions, opts *evaluateOptions) error {
	in, err := opts.input()
	if err != nil {
		return err
	}

	engineOpts := []sla.Option{}
	if opts.now != "" {
		now, err := time.Parse(time.RFC3339Nano, opts.now)
		if err != nil {
			return fmt.Errorf("invalid --now: %w", err)
		}
		engineOpts = append(engineOpts, sla.WithClock(func() time.Time { return now }))
	}
	engine := sla.NewEngine(engineOpts...)

	logger := newLogger(rootOpts)
	defer logger.Sync()

	if !opts.persist {
		// Preview never touches the store
		result := slatrace.NewService(nil, logger, slatrace.WithEngine(engine)).Preview(in)
		if rootOpts.Format == "json" {
			return writeJSON(cmd.OutOrStdout(), result.Payload)
		}
		printDecision(cmd, result.Branch, result.SLABreached, result.Reason)
		return nil
	}

	ctx := cmd.Context()
	_, store, err := openStore(ctx, rootOpts, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := slatrace.NewService(store, logger, slatrace.WithEngine(engine))
	calc, err := svc.Calculate(ctx, in)
	if err != nil {
		return err
	}

	if rootOpts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), calc)
	}
	printDecision(cmd, calc.DecisionBranch, calc.SLABreached, fmt.Sprintf("mttr=%.2fm", calc.MTTRMinutes))
	fmt.Fprintf(cmd.OutOrStdout(), "  trace: %s\n", calc.Trace.ID)
	return nil
}

func (o *evaluateOptions) input() (sla.Input, error) {
	openedAt, err := time.Parse(time.RFC3339Nano, o.openedAt)
	if err != nil {
		return sla.Input{}, fmt.Errorf("invalid --opened-at: %w", err)
	}

	in := sla.Input{
		IncidentID:       o.incidentID,
		Severity:         o.severity,
		ThresholdMinutes: o.threshold,
		OpenedAt:         openedAt,
	}

	if o.resolvedAt != "" {
		resolvedAt, err := time.Parse(time.RFC3339Nano, o.resolvedAt)
		if err != nil {
			return sla.Input{}, fmt.Errorf("invalid --resolved-at: %w", err)
		}
		in.ResolvedAt = &resolvedAt
	}

	return in, nil
}

func printDecision(cmd *cobra.Command, branch sla.Branch, breached bool, reason string) {
	w := cmd.OutOrStdout()

	mark := "✓"
	if breached {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s (sla_breached=%t)\n", mark, branch, breached)
	fmt.Fprintf(w, "  %s\n", reason)
}

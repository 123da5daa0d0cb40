package cli

import (
	"fmt"

	"github.com/samijaber1/aegis-sla/internal/app"
	"github.com/samijaber1/aegis-sla/internal/history"
	"github.com/samijaber1/aegis-sla/internal/slaconfig"
	"github.com/spf13/cobra"
)

type recordOptions struct {
	changedBy string
	reason    string
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &recordOptions{}

	cmd := &cobra.Command{
		Use:           "record <config-id> <snapshot-file>",
		Short:         "Append a new version of an SLA config from a snapshot file",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd, rootOpts, opts, args[0], args[1])
		},
	}

	cmd.Flags().StringVar(&opts.changedBy, "changed-by", "", "actor recorded on the version (required)")
	cmd.Flags().StringVar(&opts.reason, "reason", "", "optional change reason")
	cmd.MarkFlagRequired("changed-by")

	return cmd
}

func runRecord(cmd *cobra.Command, rootOpts *RootOptions, opts *recordOptions, configID, file string) error {
	snapshot, err := slaconfig.LoadSnapshot(file)
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}

	ctx := cmd.Context()
	logger := newLogger(rootOpts)
	defer logger.Sync()

	cfg, store, err := openStore(ctx, rootOpts, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := app.NewHistoryService(store, cfg.History, nil, logger)
	if err != nil {
		return err
	}

	in := history.RecordInput{
		ConfigID:  configID,
		ChangedBy: opts.changedBy,
		NewConfig: snapshot,
	}
	if opts.reason != "" {
		in.ChangeReason = &opts.reason
	}

	version, err := svc.RecordChange(ctx, in)
	if err != nil {
		return err
	}

	if rootOpts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), version)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ Recorded %s version %d by %s\n", version.ConfigID, version.Version, version.ChangedBy)
	if keys := version.Diff.Keys(); len(keys) > 0 {
		fmt.Fprintf(w, "  changed: %v\n", keys)
	} else {
		fmt.Fprintln(w, "  no changes from the previous version")
	}
	return nil
}

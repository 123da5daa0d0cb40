package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/samijaber1/aegis-sla/internal/app"
	"github.com/samijaber1/aegis-sla/internal/storage"
	"github.com/spf13/cobra"
)

type historyOptions struct {
	version int
	latest  bool
	user    bool
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history <config-id>",
		Short: "List the recorded versions of an SLA config",
		Long: `List the recorded versions of an SLA config, newest first.
With --user the argument is an actor and their changes are listed instead.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, rootOpts, opts, args[0])
		},
	}

	cmd.Flags().IntVar(&opts.version, "version", 0, "show a single version")
	cmd.Flags().BoolVar(&opts.latest, "latest", false, "show only the latest version")
	cmd.Flags().BoolVar(&opts.user, "user", false, "treat the argument as the changed_by actor")
	cmd.MarkFlagsMutuallyExclusive("version", "latest", "user")

	return cmd
}

func runHistory(cmd *cobra.Command, rootOpts *RootOptions, opts *historyOptions, arg string) error {
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

	var versions []storage.ConfigVersion
	switch {
	case opts.version > 0 || opts.latest:
		var v *storage.ConfigVersion
		if opts.latest {
			v, err = svc.GetLatest(ctx, arg)
		} else {
			v, err = svc.GetVersion(ctx, arg, opts.version)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
		versions = []storage.ConfigVersion{*v}
	case opts.user:
		versions, err = svc.GetChangesByUser(ctx, arg)
	default:
		versions, err = svc.GetHistory(ctx, arg)
	}
	if err != nil {
		return err
	}

	if rootOpts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), versions)
	}

	if len(versions) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No history for %s\n", arg)
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CONFIG\tVERSION\tCHANGED BY\tCHANGED AT\tCHANGED KEYS")
	for _, v := range versions {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%v\n", v.ConfigID, v.Version, v.ChangedBy, v.ChangedAt.UTC().Format("2006-01-02T15:04:05Z"), v.Diff.Keys())
	}
	return tw.Flush()
}

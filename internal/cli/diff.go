package cli

import (
	"fmt"

	"github.com/samijaber1/aegis-sla/internal/diff"
	"github.com/samijaber1/aegis-sla/internal/slaconfig"
	"github.com/spf13/cobra"
)

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <old-snapshot> <new-snapshot>",
		Short: "Show the changed keys between two snapshot files",
		Long: `Compare two YAML or JSON snapshots the same way recorded versions are
compared: top-level keys only, values compared by canonical JSON.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			previous, err := slaconfig.LoadSnapshot(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			next, err := slaconfig.LoadSnapshot(args[1])
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}

			d := diff.Compute(previous, next)

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), d)
			}
			return printDiff(cmd, d)
		},
	}
}

func printDiff(cmd *cobra.Command, d diff.Diff) error {
	w := cmd.OutOrStdout()
	if len(d) == 0 {
		fmt.Fprintln(w, "No changes")
		return nil
	}

	for _, key := range d.Keys() {
		from, err := diff.Canonical(d[key].From)
		if err != nil {
			return err
		}
		to, err := diff.Canonical(d[key].To)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %s -> %s\n", key, from, to)
	}
	fmt.Fprintf(w, "%d key(s) changed\n", len(d))
	return nil
}

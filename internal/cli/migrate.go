package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "migrate",
		Short:         "Create the history and trace tables",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := newLogger(rootOpts)
			defer logger.Sync()

			cfg, store, err := openStore(ctx, rootOpts, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Migrate(ctx); err != nil {
				return err
			}

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"status": "ok", "driver": cfg.Database.Driver})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Schema applied (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}

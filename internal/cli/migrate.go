package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mukhtiarDev/personal-health-monitor/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the Postgres tables if they do not exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadEnv(false)
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck // best-effort flush

		st, err := store.Open(cmd.Context(), cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

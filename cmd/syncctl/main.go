// Command syncctl runs one-off maintenance and sync operations against the commerce sync database.
package main

import (
	"fmt"
	"os"

	"commerce-sync/config"
	"commerce-sync/internal/store"
	"commerce-sync/internal/util"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "syncctl",
		Short:         "Operate the commerce sync engine from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return util.InitLogger(os.Getenv("ENV"))
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			util.SyncLogger()
		},
	}

	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newTickCmd())
	rootCmd.AddCommand(newTestConnectionCmd())
	return rootCmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if err := store.RunMigrations(cfg.Database.URL, util.GetLogger()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

// Package commands implements the dbkeeper command line surface.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbkeeper/dbkeeper/cli/internal/config"
	"github.com/dbkeeper/dbkeeper/cli/internal/ui"
	"github.com/dbkeeper/dbkeeper/cli/internal/update"
	"github.com/dbkeeper/dbkeeper/cli/internal/version"
	"github.com/dbkeeper/dbkeeper/internal/debug"
)

var (
	cfg *config.Config

	flagDatabaseURL   string
	flagMigrationsDir string
	flagDebug         bool
)

var rootCmd = &cobra.Command{
	Use:   "dbkeeper",
	Short: "Inspect, query and migrate relational databases",
	Long: `dbkeeper manages a relational database through recorded migrations.

Every schema-altering operation is written to an ordered, checksummed log
before it runs, so it can be listed, verified, re-applied and reverted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
		if flagDatabaseURL != "" {
			cfg.DatabaseURL = flagDatabaseURL
		}
		if flagMigrationsDir != "" {
			cfg.MigrationsDir = flagMigrationsDir
		}
		if flagDebug {
			cfg.Debug = true
		}
		debug.Init(cfg.Debug)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("dbkeeper " + version.String())
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check whether a newer release is available",
	RunE: func(cmd *cobra.Command, args []string) error {
		return update.Check(version.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDatabaseURL, "database-url", "", "database connection URL (overrides config and DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&flagMigrationsDir, "migrations-dir", "", "directory holding the migration log")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(updateCmd)
}

// Execute is the CLI entry point.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		ui.Error("%v", err)
		return err
	}
	return nil
}

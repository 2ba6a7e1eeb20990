package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/dbkeeper/dbkeeper/cli/internal/ui"
	"github.com/dbkeeper/dbkeeper/cli/internal/watch"
	"github.com/dbkeeper/dbkeeper/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "List, apply, revert and verify migrations",
}

var migrateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the migration log in creation order",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(false)
		if err != nil {
			return err
		}
		defer e.close()
		records, err := e.service.List()
		if err != nil {
			return err
		}
		printMigrationTable(records)
		return nil
	},
}

var (
	applyFrom  string
	applyForce bool
)

var migrateApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply recorded migrations in order",
	Long: `Apply recorded migrations in order.

Without --from, the whole log is walked; with --from, the run starts at the
given migration id (inclusive). Records already marked applied are skipped
unless --force re-runs them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(true)
		if err != nil {
			return err
		}
		defer e.close()

		applied, err := e.service.ApplyPending(context.Background(), applyFrom, applyForce)
		for _, rec := range applied {
			ui.Success("applied %s (%s)", rec.ID, rec.Name)
		}
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			ui.Dim("nothing to apply")
		}
		return nil
	},
}

var revertYes bool

var migrateRevertCmd = &cobra.Command{
	Use:   "revert [migration-id]",
	Short: "Revert a migration (the most recent one by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := ""
		if len(args) > 0 {
			id = args[0]
		}

		e, err := newEnv(true)
		if err != nil {
			return err
		}
		defer e.close()

		if !revertYes {
			label := "the most recent migration"
			if id != "" {
				label = "migration " + id
			}
			confirmed := false
			prompt := &survey.Confirm{Message: fmt.Sprintf("Revert %s?", label)}
			if err := survey.AskOne(prompt, &confirmed); err != nil {
				return err
			}
			if !confirmed {
				ui.Dim("aborted, nothing reverted")
				return nil
			}
		}

		result, err := e.service.Revert(context.Background(), id)
		if err != nil {
			return err
		}
		ui.Success("reverted %s (%s)", result.Record.ID, result.Record.Name)
		ui.SQL(result.RevertSQL)
		return nil
	},
}

var migrateVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every record's checksum against its stored SQL",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(false)
		if err != nil {
			return err
		}
		defer e.close()

		issues, err := e.service.Verify()
		if err != nil {
			return err
		}
		if len(issues) == 0 {
			ui.Success("migration log verified, no integrity issues")
			return nil
		}
		for _, issue := range issues {
			ui.Error("%v", issue)
		}
		return fmt.Errorf("%d migration(s) failed integrity verification", len(issues))
	},
}

var migrateShowCmd = &cobra.Command{
	Use:   "show <migration-id>",
	Short: "Show one migration record with its SQL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(false)
		if err != nil {
			return err
		}
		defer e.close()

		records, err := e.service.List()
		if err != nil {
			return err
		}
		for _, rec := range records {
			if rec.ID == args[0] {
				ui.Markdown(renderRecord(rec))
				return nil
			}
		}
		return fmt.Errorf("migration %s: %w", args[0], migrate.ErrNotFound)
	},
}

var migrateWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the migration directory and re-list on change",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(false)
		if err != nil {
			return err
		}
		defer e.close()

		// The directory must exist before it can be watched.
		if _, err := e.service.List(); err != nil {
			return err
		}

		w, err := watch.NewWatcher(e.cfg.MigrationsDir, func() error {
			records, err := e.service.List()
			if err != nil {
				return err
			}
			printMigrationTable(records)
			return nil
		})
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		defer w.Stop()

		ui.Dim("watching %s, press Ctrl-C to stop", e.cfg.MigrationsDir)
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		return nil
	},
}

var migrateRegenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "Rewrite the derived .sql files from the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(false)
		if err != nil {
			return err
		}
		defer e.close()
		if err := e.store.RegenerateFiles(); err != nil {
			return err
		}
		ui.Success("derived SQL files regenerated")
		return nil
	},
}

func init() {
	migrateApplyCmd.Flags().StringVar(&applyFrom, "from", "", "apply starting at this migration id (inclusive)")
	migrateApplyCmd.Flags().BoolVar(&applyForce, "force", false, "re-run migrations already marked applied")
	migrateRevertCmd.Flags().BoolVarP(&revertYes, "yes", "y", false, "skip the confirmation prompt")

	migrateCmd.AddCommand(migrateListCmd)
	migrateCmd.AddCommand(migrateApplyCmd)
	migrateCmd.AddCommand(migrateRevertCmd)
	migrateCmd.AddCommand(migrateVerifyCmd)
	migrateCmd.AddCommand(migrateShowCmd)
	migrateCmd.AddCommand(migrateWatchCmd)
	migrateCmd.AddCommand(migrateRegenerateCmd)
	rootCmd.AddCommand(migrateCmd)
}

func printMigrationTable(records []migrate.Record) {
	if len(records) == 0 {
		ui.Dim("no migrations recorded")
		return
	}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		desc := rec.Description
		if len(desc) > 40 {
			desc = desc[:37] + "..."
		}
		rows = append(rows, []string{
			rec.ID,
			rec.Name,
			string(rec.Kind),
			string(rec.Status),
			rec.CreatedAt.Format(time.RFC3339),
			desc,
		})
	}
	ui.Table([]string{"ID", "NAME", "TYPE", "STATUS", "CREATED", "DESCRIPTION"}, rows)
}

func renderRecord(rec migrate.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", rec.Name)
	fmt.Fprintf(&b, "- **ID**: %s\n", rec.ID)
	fmt.Fprintf(&b, "- **Type**: %s\n", rec.Kind)
	fmt.Fprintf(&b, "- **Status**: %s\n", rec.Status)
	fmt.Fprintf(&b, "- **Created**: %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Checksum**: %s\n", rec.Checksum)
	if rec.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", rec.Description)
	}
	fmt.Fprintf(&b, "\n```sql\n%s\n```\n", rec.SQL)
	return b.String()
}

package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dbkeeper/dbkeeper/cli/internal/ui"
)

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run a read-only query",
	Long: `Run a query inside a read-only transaction that is always rolled
back, so even a mislabeled write cannot change the database.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(true)
		if err != nil {
			return err
		}
		defer e.close()

		result, err := e.database.Query(context.Background(), args[0])
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(result.Rows))
		for _, row := range result.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = formatValue(v)
			}
			rows = append(rows, cells)
		}
		ui.Table(result.Columns, rows)
		ui.Dim("%d row(s)", len(result.Rows))
		return nil
	},
}

var execCmd = &cobra.Command{
	Use:   "exec <sql>",
	Short: "Execute a write statement transactionally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv(true)
		if err != nil {
			return err
		}
		defer e.close()

		result, err := e.database.Execute(context.Background(), args[0])
		if err != nil {
			return err
		}
		ui.Success("%s affected %d row(s)", result.Command, result.RowCount)
		ui.SQL(args[0])
		if result.Rows != nil && len(result.Rows.Rows) > 0 {
			rows := make([][]string, 0, len(result.Rows.Rows))
			for _, row := range result.Rows.Rows {
				cells := make([]string, len(row))
				for i, v := range row {
					cells[i] = formatValue(v)
				}
				rows = append(rows, cells)
			}
			ui.Table(result.Rows.Columns, rows)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(execCmd)
}

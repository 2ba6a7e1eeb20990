package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbkeeper/dbkeeper/migrate"
	"github.com/dbkeeper/dbkeeper/sqlgen"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create and alter schema objects through recorded migrations",
	Long: `Create and alter schema objects through recorded migrations.

Each subcommand builds a single SQL statement from its flags, records it in
the migration log and applies it to the database. The executed SQL is always
echoed back.`,
}

var (
	schemaDescription string

	tableColumns     []string
	tableConstraints []string

	fnArgs     string
	fnReturns  string
	fnLanguage string
	fnBody     string
	fnBodyFile string
	fnReplace  bool

	trgTable    string
	trgTiming   string
	trgEvents   []string
	trgForEach  string
	trgWhen     string
	trgFunction string

	idxName    string
	idxColumns []string
	idxUnique  bool
	idxMethod  string
	idxWhere   string

	altOperation string
	altDetails   string
)

var createTableCmd = &cobra.Command{
	Use:   "create-table <table>",
	Short: "Create a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(tableColumns) == 0 {
			return fmt.Errorf("at least one --column is required")
		}
		columns := make([]sqlgen.Column, 0, len(tableColumns))
		for _, spec := range tableColumns {
			col, err := parseColumnSpec(spec)
			if err != nil {
				return err
			}
			columns = append(columns, col)
		}
		sqlText := sqlgen.CreateTable(args[0], columns, tableConstraints)
		return runMigration(migrate.KindTable, sqlText, schemaDescription)
	},
}

var createFunctionCmd = &cobra.Command{
	Use:   "create-function <name>",
	Short: "Create a function",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := fnBody
		if fnBodyFile != "" {
			raw, err := os.ReadFile(fnBodyFile)
			if err != nil {
				return fmt.Errorf("failed to read function body: %w", err)
			}
			body = string(raw)
		}
		if body == "" {
			return fmt.Errorf("a function body is required (--body or --body-file)")
		}
		sqlText := sqlgen.CreateFunction(sqlgen.Function{
			Name:     args[0],
			Args:     fnArgs,
			Returns:  fnReturns,
			Language: fnLanguage,
			Body:     body,
			Replace:  fnReplace,
		})
		return runMigration(migrate.KindFunction, sqlText, schemaDescription)
	},
}

var createTriggerCmd = &cobra.Command{
	Use:   "create-trigger <name>",
	Short: "Create a trigger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sqlText := sqlgen.CreateTrigger(sqlgen.Trigger{
			Name:     args[0],
			Table:    trgTable,
			Timing:   trgTiming,
			Events:   trgEvents,
			ForEach:  trgForEach,
			When:     trgWhen,
			Function: trgFunction,
		})
		return runMigration(migrate.KindTrigger, sqlText, schemaDescription)
	},
}

var createIndexCmd = &cobra.Command{
	Use:   "create-index <table>",
	Short: "Create an index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(idxColumns) == 0 {
			return fmt.Errorf("at least one --column is required")
		}
		sqlText := sqlgen.CreateIndex(sqlgen.Index{
			Name:    idxName,
			Table:   args[0],
			Columns: idxColumns,
			Unique:  idxUnique,
			Method:  idxMethod,
			Where:   idxWhere,
		})
		return runMigration(migrate.KindIndex, sqlText, schemaDescription)
	},
}

var alterTableCmd = &cobra.Command{
	Use:   "alter-table <table>",
	Short: "Alter a table (not revertible)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sqlText := sqlgen.AlterTable(args[0], altOperation, altDetails)
		return runMigration(migrate.KindAlter, sqlText, schemaDescription)
	},
}

func init() {
	schemaCmd.PersistentFlags().StringVar(&schemaDescription, "description", "", "free-text description stored with the migration")

	createTableCmd.Flags().StringArrayVar(&tableColumns, "column", nil, `column spec "name:type[:constraints]" (repeatable)`)
	createTableCmd.Flags().StringArrayVar(&tableConstraints, "constraint", nil, "table-level constraint (repeatable)")

	createFunctionCmd.Flags().StringVar(&fnArgs, "args", "", "argument list, e.g. \"a integer, b integer\"")
	createFunctionCmd.Flags().StringVar(&fnReturns, "returns", "", "return type (default void)")
	createFunctionCmd.Flags().StringVar(&fnLanguage, "language", "", "function language (default plpgsql)")
	createFunctionCmd.Flags().StringVar(&fnBody, "body", "", "function body")
	createFunctionCmd.Flags().StringVar(&fnBodyFile, "body-file", "", "read the function body from a file")
	createFunctionCmd.Flags().BoolVar(&fnReplace, "replace", false, "use CREATE OR REPLACE")

	createTriggerCmd.Flags().StringVar(&trgTable, "table", "", "table the trigger fires on")
	createTriggerCmd.Flags().StringVar(&trgTiming, "timing", "", "BEFORE, AFTER or INSTEAD OF (default BEFORE)")
	createTriggerCmd.Flags().StringArrayVar(&trgEvents, "event", nil, "INSERT, UPDATE or DELETE (repeatable, default INSERT)")
	createTriggerCmd.Flags().StringVar(&trgForEach, "for-each", "", "ROW or STATEMENT (default ROW)")
	createTriggerCmd.Flags().StringVar(&trgWhen, "when", "", "optional WHEN condition")
	createTriggerCmd.Flags().StringVar(&trgFunction, "function", "", "function to execute")
	_ = createTriggerCmd.MarkFlagRequired("table")
	_ = createTriggerCmd.MarkFlagRequired("function")

	createIndexCmd.Flags().StringVar(&idxName, "name", "", "index name (derived from table and columns when empty)")
	createIndexCmd.Flags().StringArrayVar(&idxColumns, "column", nil, "indexed column (repeatable)")
	createIndexCmd.Flags().BoolVar(&idxUnique, "unique", false, "create a UNIQUE index")
	createIndexCmd.Flags().StringVar(&idxMethod, "method", "", "index method, e.g. btree or gin")
	createIndexCmd.Flags().StringVar(&idxWhere, "where", "", "partial-index condition")

	alterTableCmd.Flags().StringVar(&altOperation, "operation", "", "operation, e.g. \"ADD COLUMN\"")
	alterTableCmd.Flags().StringVar(&altDetails, "details", "", "operation details, e.g. \"age INTEGER\"")
	_ = alterTableCmd.MarkFlagRequired("operation")

	schemaCmd.AddCommand(createTableCmd)
	schemaCmd.AddCommand(createFunctionCmd)
	schemaCmd.AddCommand(createTriggerCmd)
	schemaCmd.AddCommand(createIndexCmd)
	schemaCmd.AddCommand(alterTableCmd)
	rootCmd.AddCommand(schemaCmd)
}

// parseColumnSpec turns "name:type[:constraints]" into a Column. The
// constraint segment is split on commas so "NOT NULL,UNIQUE" works.
func parseColumnSpec(spec string) (sqlgen.Column, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return sqlgen.Column{}, fmt.Errorf("invalid column spec %q, want name:type[:constraints]", spec)
	}
	col := sqlgen.Column{Name: parts[0], Type: parts[1]}
	if len(parts) == 3 && parts[2] != "" {
		for _, c := range strings.Split(parts[2], ",") {
			if c = strings.TrimSpace(c); c != "" {
				col.Constraints = append(col.Constraints, c)
			}
		}
	}
	return col, nil
}

// Package sqlgen formats schema DDL from structured specs. The builders are
// pure: structured parameters in, a single SQL string out. The migration
// core records their output verbatim and never inspects it on the forward
// path.
package sqlgen

import (
	"fmt"
	"strings"
)

// Column describes one table column.
type Column struct {
	Name        string
	Type        string
	Constraints []string // NOT NULL, UNIQUE, PRIMARY KEY, DEFAULT ...
}

// CreateTable formats a CREATE TABLE statement with one column definition
// per line plus optional table-level constraints.
func CreateTable(table string, columns []Column, constraints []string) string {
	defs := make([]string, 0, len(columns)+len(constraints))
	for _, c := range columns {
		def := c.Name + " " + c.Type
		if len(c.Constraints) > 0 {
			def += " " + strings.Join(c.Constraints, " ")
		}
		defs = append(defs, def)
	}
	defs = append(defs, constraints...)
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", table, strings.Join(defs, ",\n  "))
}

// Function describes a CREATE FUNCTION statement.
type Function struct {
	Name     string
	Args     string // raw argument list, e.g. "a integer, b integer"
	Returns  string // defaults to trigger-friendly "void"
	Language string // defaults to plpgsql
	Body     string
	Replace  bool
}

// CreateFunction formats a multi-line CREATE [OR REPLACE] FUNCTION statement
// with a dollar-quoted body.
func CreateFunction(fn Function) string {
	create := "CREATE FUNCTION"
	if fn.Replace {
		create = "CREATE OR REPLACE FUNCTION"
	}
	returns := fn.Returns
	if returns == "" {
		returns = "void"
	}
	lang := fn.Language
	if lang == "" {
		lang = "plpgsql"
	}
	return fmt.Sprintf("%s %s(%s)\nRETURNS %s\nLANGUAGE %s\nAS $$\n%s\n$$",
		create, fn.Name, fn.Args, returns, lang, strings.TrimSpace(fn.Body))
}

// Trigger describes a CREATE TRIGGER statement.
type Trigger struct {
	Name     string
	Table    string
	Timing   string   // BEFORE, AFTER, INSTEAD OF; defaults to BEFORE
	Events   []string // INSERT, UPDATE, DELETE; defaults to INSERT
	ForEach  string   // ROW or STATEMENT; defaults to ROW
	When     string   // optional condition, emitted as WHEN (<cond>)
	Function string   // function to execute, without parentheses
}

// CreateTrigger formats a multi-line CREATE TRIGGER statement.
func CreateTrigger(tr Trigger) string {
	timing := tr.Timing
	if timing == "" {
		timing = "BEFORE"
	}
	events := tr.Events
	if len(events) == 0 {
		events = []string{"INSERT"}
	}
	forEach := tr.ForEach
	if forEach == "" {
		forEach = "ROW"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TRIGGER %s\n", tr.Name)
	fmt.Fprintf(&b, "%s %s\n", strings.ToUpper(timing), strings.ToUpper(strings.Join(events, " OR ")))
	fmt.Fprintf(&b, "ON %s\n", tr.Table)
	fmt.Fprintf(&b, "FOR EACH %s\n", strings.ToUpper(forEach))
	if tr.When != "" {
		fmt.Fprintf(&b, "WHEN (%s)\n", tr.When)
	}
	fmt.Fprintf(&b, "EXECUTE FUNCTION %s()", tr.Function)
	return b.String()
}

// Index describes a CREATE INDEX statement.
type Index struct {
	Name    string // auto-named from table and columns when empty
	Table   string
	Columns []string
	Unique  bool
	Method  string // btree, gin, gist ...
	Where   string // optional partial-index condition
}

// ResolvedName returns the index name, deriving idx_<table>_<columns> when
// none was given.
func (ix Index) ResolvedName() string {
	if ix.Name != "" {
		return ix.Name
	}
	return fmt.Sprintf("idx_%s_%s", ix.Table, strings.Join(ix.Columns, "_"))
}

// CreateIndex formats a multi-line CREATE [UNIQUE] INDEX statement.
func CreateIndex(ix Index) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if ix.Unique {
		b.WriteString("UNIQUE ")
	}
	fmt.Fprintf(&b, "INDEX %s\n", ix.ResolvedName())
	fmt.Fprintf(&b, "ON %s", ix.Table)
	if ix.Method != "" {
		fmt.Fprintf(&b, " USING %s", ix.Method)
	}
	fmt.Fprintf(&b, " (%s)", strings.Join(ix.Columns, ", "))
	if ix.Where != "" {
		fmt.Fprintf(&b, "\nWHERE %s", ix.Where)
	}
	return b.String()
}

// AlterTable formats an ALTER TABLE statement from an operation and its
// details, e.g. AlterTable("users", "ADD COLUMN", "age INTEGER").
func AlterTable(table, operation, details string) string {
	stmt := fmt.Sprintf("ALTER TABLE %s %s", table, strings.ToUpper(strings.TrimSpace(operation)))
	if details = strings.TrimSpace(details); details != "" {
		stmt += " " + details
	}
	return stmt
}

// Package revert derives undo SQL for a recorded migration.
//
// Records created by current versions carry a structured inverse descriptor
// captured at creation time, making revert a lookup. Records without one fall
// back to pattern extraction over the recorded forward SQL, which only
// understands statements shaped like the ones the sqlgen builders emit.
package revert

import (
	"fmt"
	"regexp"

	"github.com/dbkeeper/dbkeeper/migrate"
)

// Synthesizer builds revert statements for migration records.
type Synthesizer struct{}

// New returns a Synthesizer.
func New() *Synthesizer { return &Synthesizer{} }

// The builders emit multi-line SQL for functions, triggers and indexes, so
// every pattern is case-insensitive and treats the input as one line.
var (
	tablePattern    = regexp.MustCompile(`(?is)CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?([A-Za-z_"][\w".]*)`)
	functionPattern = regexp.MustCompile(`(?is)CREATE\s+(?:OR\s+REPLACE\s+)?FUNCTION\s+([A-Za-z_"][\w".]*)\s*\(`)
	triggerPattern  = regexp.MustCompile(`(?is)CREATE\s+TRIGGER\s+([A-Za-z_"][\w"]*).*?\sON\s+([A-Za-z_"][\w".]*)`)
	indexPattern    = regexp.MustCompile(`(?is)CREATE\s+(?:UNIQUE\s+)?INDEX\s+(?:CONCURRENTLY\s+)?(?:IF\s+NOT\s+EXISTS\s+)?([A-Za-z_"][\w"]*)`)
)

// DeriveInverse extracts a structured undo descriptor from forward SQL, or
// nil when none can be derived. Called at creation time so the descriptor is
// stored alongside the record; alter statements carry no general inverse.
func (s *Synthesizer) DeriveInverse(kind migrate.Kind, sqlText string) *migrate.Inverse {
	switch kind {
	case migrate.KindTable:
		if m := tablePattern.FindStringSubmatch(sqlText); m != nil {
			return &migrate.Inverse{Kind: kind, Name: m[1]}
		}
	case migrate.KindFunction:
		if m := functionPattern.FindStringSubmatch(sqlText); m != nil {
			return &migrate.Inverse{Kind: kind, Name: m[1]}
		}
	case migrate.KindTrigger:
		if m := triggerPattern.FindStringSubmatch(sqlText); m != nil {
			return &migrate.Inverse{Kind: kind, Name: m[1], Table: m[2]}
		}
	case migrate.KindIndex:
		if m := indexPattern.FindStringSubmatch(sqlText); m != nil {
			return &migrate.Inverse{Kind: kind, Name: m[1]}
		}
	}
	return nil
}

// Synthesize returns the undo statement for rec. It fails with
// migrate.ErrUnsupportedKind when rec's kind has no revert strategy, and
// with a descriptive error when extraction finds nothing to drop; an
// unrevertable migration must never succeed as a silent no-op.
func (s *Synthesizer) Synthesize(rec migrate.Record) (string, error) {
	if rec.Kind == migrate.KindAlter {
		return "", fmt.Errorf("migration %s (%s): %w", rec.ID, rec.Kind, migrate.ErrUnsupportedKind)
	}
	if !rec.Kind.Valid() {
		return "", fmt.Errorf("migration %s (%q): %w", rec.ID, rec.Kind, migrate.ErrUnsupportedKind)
	}
	inv := rec.Inverse
	if inv == nil {
		inv = s.DeriveInverse(rec.Kind, rec.SQL)
	}
	if inv == nil {
		return "", fmt.Errorf("migration %s: could not extract %s name from recorded SQL", rec.ID, rec.Kind)
	}
	return statementFor(*inv)
}

func statementFor(inv migrate.Inverse) (string, error) {
	switch inv.Kind {
	case migrate.KindTable:
		return "DROP TABLE IF EXISTS " + inv.Name, nil
	case migrate.KindFunction:
		return "DROP FUNCTION IF EXISTS " + inv.Name, nil
	case migrate.KindTrigger:
		return fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", inv.Name, inv.Table), nil
	case migrate.KindIndex:
		return "DROP INDEX IF EXISTS " + inv.Name, nil
	}
	return "", fmt.Errorf("inverse descriptor kind %q: %w", inv.Kind, migrate.ErrUnsupportedKind)
}

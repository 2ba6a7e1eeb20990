// Package migrate implements recorded, reversible schema migrations: every
// schema-altering statement is written to an ordered, checksummed log before
// it runs, and each log entry can later be undone from its recorded SQL.
package migrate

import "time"

// Kind categorizes a migration and selects its revert strategy.
type Kind string

const (
	KindTable    Kind = "table"
	KindFunction Kind = "function"
	KindTrigger  Kind = "trigger"
	KindIndex    Kind = "index"
	KindAlter    Kind = "alter"
)

// Valid reports whether k is a known migration kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTable, KindFunction, KindTrigger, KindIndex, KindAlter:
		return true
	}
	return false
}

// Status tracks how far a migration has progressed. A reverted migration has
// no status: its record is removed from the log entirely.
type Status string

const (
	StatusRecorded Status = "recorded"
	StatusApplied  Status = "applied"
)

// Inverse is a structured undo descriptor captured when a migration is
// created. When present, revert synthesis is a lookup instead of a parse of
// the recorded SQL.
type Inverse struct {
	Kind  Kind   `json:"kind"`
	Name  string `json:"name"`
	Table string `json:"table,omitempty"` // trigger drops need the owning table
}

// Record is one entry in the migration log. SQL is the forensic record of
// the statement that actually ran and is never rewritten; Checksum is the
// SHA-256 digest of that exact text.
type Record struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"timestamp"`
	SQL         string    `json:"sql"`
	Kind        Kind      `json:"type"`
	Description string    `json:"description,omitempty"`
	Checksum    string    `json:"checksum"`
	Status      Status    `json:"status"`
	Inverse     *Inverse  `json:"inverse,omitempty"`
}

package migrate

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no migration matches the requested id, or
	// when a revert is attempted against an empty log.
	ErrNotFound = errors.New("migration not found")

	// ErrUnsupportedKind is returned when a migration kind has no revert
	// strategy (alter statements carry no general inverse).
	ErrUnsupportedKind = errors.New("no revert strategy for migration kind")
)

// IntegrityError reports a mismatch between a record's checksum and the SQL
// it claims to describe. It indicates the log was edited after the fact and
// must not be accepted silently.
type IntegrityError struct {
	ID       string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("migration %s failed integrity check: recorded checksum %s, computed %s", e.ID, e.Expected, e.Actual)
}

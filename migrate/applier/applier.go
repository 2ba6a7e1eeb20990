// Package applier executes a migration's SQL inside a single transaction.
package applier

import (
	"context"
	"fmt"

	"github.com/dbkeeper/dbkeeper/internal/debug"
	"github.com/dbkeeper/dbkeeper/migrate"
)

// Applier runs one migration per call with commit-or-rollback semantics.
// Recording happens elsewhere; Apply never touches the migration log.
type Applier struct{}

// New returns an Applier.
func New() *Applier { return &Applier{} }

// Apply executes rec.SQL on conn inside a transaction. On success the
// transaction commits; on any execution error it rolls back and the database
// error propagates unchanged so the caller sees the driver's own message.
// The rollback also runs if the executing goroutine panics mid-statement.
func (a *Applier) Apply(ctx context.Context, conn migrate.Conn, rec migrate.Record) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	debug.Debug("applying migration", "id", rec.ID, "kind", rec.Kind)
	if _, err := tx.ExecContext(ctx, rec.SQL); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", rec.ID, err)
	}
	return nil
}

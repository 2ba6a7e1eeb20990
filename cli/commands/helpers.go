package commands

import (
	"context"
	"fmt"

	"github.com/dbkeeper/dbkeeper/cli/internal/config"
	"github.com/dbkeeper/dbkeeper/cli/internal/ui"
	"github.com/dbkeeper/dbkeeper/db"
	"github.com/dbkeeper/dbkeeper/migrate"
	"github.com/dbkeeper/dbkeeper/migrate/applier"
	"github.com/dbkeeper/dbkeeper/migrate/revert"
	"github.com/dbkeeper/dbkeeper/migrate/store"
)

// env bundles the collaborators one command invocation needs. It is built
// per invocation and torn down with close; nothing lives in package state
// beyond the loaded configuration.
type env struct {
	cfg      *config.Config
	store    *store.Store
	database *db.Database
	service  *migrate.Service
}

// newEnv wires the migration subsystem together. Commands that only read
// the log pass requireDB=false and work without a connection.
func newEnv(requireDB bool) (*env, error) {
	e := &env{cfg: cfg}
	e.store = store.New(config.AppFs, cfg.MigrationsDir)

	var conns migrate.ConnSource
	if cfg.DatabaseURL != "" {
		database, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if requireDB {
			if err := database.Ping(context.Background()); err != nil {
				_ = database.Close()
				return nil, fmt.Errorf("database unreachable: %w", err)
			}
		}
		e.database = database
		conns = database
	} else if requireDB {
		return nil, fmt.Errorf("no database configured: set DATABASE_URL, database_url in .dbkeeper.yaml, or --database-url")
	}

	e.service = migrate.NewService(e.store, applier.New(), revert.New(), conns)
	return e, nil
}

func (e *env) close() {
	if e.database != nil {
		_ = e.database.Close()
	}
}

// runMigration records and applies one schema change, echoing the executed
// SQL so the caller can verify exactly what ran.
func runMigration(kind migrate.Kind, sqlText, description string) error {
	e, err := newEnv(true)
	if err != nil {
		return err
	}
	defer e.close()

	rec, err := e.service.CreateAndApply(context.Background(), kind, sqlText, description)
	if err != nil {
		if rec.ID != "" {
			ui.Warning("migration %s is recorded but was not applied", rec.ID)
		}
		return err
	}
	ui.Success("migration %s applied", rec.ID)
	ui.SQL(rec.SQL)
	return nil
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}

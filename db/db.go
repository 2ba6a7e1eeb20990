// Package db wraps database/sql with the transactional read and write
// helpers the tool surface exposes, plus scoped connection acquisition for
// the migration core.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dbkeeper/dbkeeper/internal/debug"
	"github.com/dbkeeper/dbkeeper/migrate"
)

// Database is a provider-aware handle over a connection pool.
type Database struct {
	pool     *sql.DB
	provider string
}

// DetectProvider maps a connection URL to a provider name. Anything that is
// not recognizably postgres or mysql is treated as a sqlite path.
func DetectProvider(rawURL string) string {
	switch {
	case strings.HasPrefix(rawURL, "postgres://"), strings.HasPrefix(rawURL, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(rawURL, "mysql://"), strings.Contains(rawURL, "@tcp("):
		return "mysql"
	default:
		return "sqlite"
	}
}

func driverName(provider string) string {
	switch provider {
	case "postgres", "postgresql":
		return "postgres"
	case "mysql":
		return "mysql"
	default:
		return "sqlite3"
	}
}

// Open connects to the database described by rawURL. The driver is chosen
// from the URL shape; callers must blank-import the drivers they need.
func Open(rawURL string) (*Database, error) {
	provider := DetectProvider(rawURL)
	dsn := rawURL
	if provider == "mysql" {
		// The mysql driver wants a bare DSN, not a URL.
		dsn = strings.TrimPrefix(dsn, "mysql://")
	}
	pool, err := sql.Open(driverName(provider), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Database{pool: pool, provider: provider}, nil
}

// Wrap adopts an existing pool. Tests use this with an in-memory sqlite.
func Wrap(pool *sql.DB, provider string) *Database {
	return &Database{pool: pool, provider: provider}
}

// Provider returns the detected provider name.
func (d *Database) Provider() string { return d.provider }

// Ping verifies the connection.
func (d *Database) Ping(ctx context.Context) error { return d.pool.PingContext(ctx) }

// Close releases the pool.
func (d *Database) Close() error { return d.pool.Close() }

// Acquire hands out a dedicated connection for one migration operation. The
// caller must Close it on every exit path or the pool leaks.
func (d *Database) Acquire(ctx context.Context) (migrate.Conn, error) {
	conn, err := d.pool.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return conn, nil
}

// QueryResult is a column-ordered result set.
type QueryResult struct {
	Columns []string
	Rows    [][]any
}

// ExecResult describes a committed write.
type ExecResult struct {
	Command  string
	RowCount int64
	Rows     *QueryResult // populated for statements with RETURNING
}

// Query runs a read statement inside a transaction that is always rolled
// back, so even a mislabeled write cannot stick.
func (d *Database) Query(ctx context.Context, sqlText string, params ...any) (*QueryResult, error) {
	opts := &sql.TxOptions{}
	if d.provider == "postgres" {
		opts.ReadOnly = true
	}
	tx, err := d.pool.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	// The read path never commits.
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// Execute runs a write statement inside a transaction, committing on success
// and rolling back on failure. The database error propagates unchanged.
func (d *Database) Execute(ctx context.Context, sqlText string, params ...any) (*ExecResult, error) {
	tx, err := d.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	res := &ExecResult{Command: commandTag(sqlText)}
	if hasReturning(sqlText) {
		rows, err := tx.QueryContext(ctx, sqlText, params...)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		qr, err := scanRows(rows)
		rows.Close()
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		res.Rows = qr
		res.RowCount = int64(len(qr.Rows))
	} else {
		r, err := tx.ExecContext(ctx, sqlText, params...)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if n, err := r.RowsAffected(); err == nil {
			res.RowCount = n
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	debug.Debug("statement executed", "command", res.Command, "rows", res.RowCount)
	return res, nil
}

func scanRows(rows *sql.Rows) (*QueryResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	result := &QueryResult{Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			// Drivers hand text back as []byte; strings read better.
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// commandTag returns the leading SQL keyword, uppercased.
func commandTag(sqlText string) string {
	fields := strings.Fields(strings.TrimSpace(sqlText))
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

func hasReturning(sqlText string) bool {
	return strings.Contains(strings.ToUpper(sqlText), " RETURNING ")
}

// Package store persists the migration log: an ordered JSON index plus one
// derived SQL file per migration.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/dbkeeper/dbkeeper/internal/debug"
	"github.com/dbkeeper/dbkeeper/migrate"
	"github.com/dbkeeper/dbkeeper/migrate/ident"
)

const (
	indexFile = "migrations.json"
	noDesc    = "No description provided"
)

// Store owns the migration directory. The JSON index is the single source of
// truth; the per-migration .sql files are regenerable artifacts kept so a
// human can read what ran without parsing JSON. Index writes go through a
// temp file promoted by rename, so a crash never leaves a half-written index.
type Store struct {
	fs  afero.Fs
	dir string
}

// New returns a Store rooted at dir on the given filesystem.
func New(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

// Dir returns the migration directory path.
func (s *Store) Dir() string { return s.dir }

type index struct {
	Migrations []migrate.Record `json:"migrations"`
}

// EnsureInitialized creates the migration directory and an empty index when
// absent. It is idempotent and safe to call before every operation.
func (s *Store) EnsureInitialized() error {
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create migration directory %s: %w", s.dir, err)
	}
	if _, err := s.fs.Stat(s.indexPath()); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat migration index: %w", err)
	}
	return s.writeIndex(index{Migrations: []migrate.Record{}})
}

// Append adds rec to the index and writes its derived SQL file. The index
// write carries the durability guarantee; a failed SQL file write is logged
// and tolerated because the file can be regenerated from the index.
func (s *Store) Append(rec migrate.Record) error {
	idx, err := s.readIndex()
	if err != nil {
		return err
	}
	idx.Migrations = append(idx.Migrations, rec)
	if err := s.writeIndex(idx); err != nil {
		return err
	}
	if err := s.writeSQLFile(rec); err != nil {
		debug.Warn("failed to write migration SQL file", "id", rec.ID, "error", err)
	}
	return nil
}

// List returns all records in creation order. A missing or unreadable index
// yields an empty list so a fresh working directory bootstraps cleanly.
func (s *Store) List() ([]migrate.Record, error) {
	idx, err := s.readIndex()
	if err != nil {
		debug.Warn("migration index unreadable, treating as empty", "error", err)
		return []migrate.Record{}, nil
	}
	return idx.Migrations, nil
}

// Remove deletes the index entry for id and its SQL file. A missing entry is
// an error; a missing SQL file is logged and tolerated so a prior partial
// cleanup can be retried.
func (s *Store) Remove(id string) error {
	idx, err := s.readIndex()
	if err != nil {
		return err
	}
	kept := idx.Migrations[:0]
	found := false
	for _, rec := range idx.Migrations {
		if rec.ID == id {
			found = true
			continue
		}
		kept = append(kept, rec)
	}
	if !found {
		return fmt.Errorf("migration %s: %w", id, migrate.ErrNotFound)
	}
	idx.Migrations = kept
	if err := s.writeIndex(idx); err != nil {
		return err
	}
	if err := s.fs.Remove(s.sqlPath(id)); err != nil {
		if os.IsNotExist(err) {
			debug.Warn("migration SQL file already absent", "id", id)
			return nil
		}
		return fmt.Errorf("failed to remove migration SQL file for %s: %w", id, err)
	}
	return nil
}

// SetStatus persists a status transition for the record with the given id.
func (s *Store) SetStatus(id string, status migrate.Status) error {
	idx, err := s.readIndex()
	if err != nil {
		return err
	}
	for i := range idx.Migrations {
		if idx.Migrations[i].ID == id {
			idx.Migrations[i].Status = status
			return s.writeIndex(idx)
		}
	}
	return fmt.Errorf("migration %s: %w", id, migrate.ErrNotFound)
}

// Verify recomputes every record's checksum and compares each derived SQL
// file against the index copy. It reports mismatches without failing, so a
// caller can surface all corruption at once.
func (s *Store) Verify() ([]*migrate.IntegrityError, error) {
	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	var issues []*migrate.IntegrityError
	for _, rec := range idx.Migrations {
		if sum := ident.Checksum(rec.SQL); sum != rec.Checksum {
			issues = append(issues, &migrate.IntegrityError{ID: rec.ID, Expected: rec.Checksum, Actual: sum})
			continue
		}
		raw, err := afero.ReadFile(s.fs, s.sqlPath(rec.ID))
		if err != nil {
			// An absent file is regenerable, not corruption.
			continue
		}
		if body := sqlFileBody(string(raw)); body != rec.SQL {
			issues = append(issues, &migrate.IntegrityError{
				ID:       rec.ID,
				Expected: rec.Checksum,
				Actual:   ident.Checksum(body),
			})
		}
	}
	return issues, nil
}

// RegenerateFiles rewrites every derived SQL file from the index. Used to
// repair files lost to partial cleanup.
func (s *Store) RegenerateFiles() error {
	idx, err := s.readIndex()
	if err != nil {
		return err
	}
	for _, rec := range idx.Migrations {
		if err := s.writeSQLFile(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) indexPath() string { return filepath.Join(s.dir, indexFile) }

func (s *Store) sqlPath(id string) string { return filepath.Join(s.dir, id+".sql") }

func (s *Store) readIndex() (index, error) {
	raw, err := afero.ReadFile(s.fs, s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return index{Migrations: []migrate.Record{}}, nil
		}
		return index{}, fmt.Errorf("failed to read migration index: %w", err)
	}
	var idx index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return index{}, fmt.Errorf("failed to parse migration index: %w", err)
	}
	return idx, nil
}

func (s *Store) writeIndex(idx index) error {
	raw, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode migration index: %w", err)
	}
	tmp := s.indexPath() + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write migration index: %w", err)
	}
	if err := s.fs.Rename(tmp, s.indexPath()); err != nil {
		return fmt.Errorf("failed to promote migration index: %w", err)
	}
	return nil
}

func (s *Store) writeSQLFile(rec migrate.Record) error {
	desc := rec.Description
	if desc == "" {
		desc = noDesc
	}
	var b strings.Builder
	fmt.Fprintf(&b, "-- Migration: %s\n", rec.Name)
	fmt.Fprintf(&b, "-- Type: %s\n", rec.Kind)
	fmt.Fprintf(&b, "-- Description: %s\n", desc)
	fmt.Fprintf(&b, "-- Timestamp: %s\n", rec.CreatedAt.Format(time.RFC3339))
	b.WriteString("\n")
	b.WriteString(rec.SQL)
	return afero.WriteFile(s.fs, s.sqlPath(rec.ID), []byte(b.String()), 0o644)
}

// sqlFileBody strips the header comment block from a derived SQL file,
// returning the verbatim statement that follows the first blank line.
func sqlFileBody(contents string) string {
	if _, body, ok := strings.Cut(contents, "\n\n"); ok {
		return body
	}
	return contents
}

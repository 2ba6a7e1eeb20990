package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/dbkeeper/dbkeeper/migrate"
	"github.com/dbkeeper/dbkeeper/migrate/ident"
)

func newTestStore(t *testing.T) (*Store, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s := New(fs, "migrations")
	require.NoError(t, s.EnsureInitialized())
	return s, fs
}

func testRecord(id, sqlText string) migrate.Record {
	return migrate.Record{
		ID:        id,
		Name:      "table_migration_test",
		CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		SQL:       sqlText,
		Kind:      migrate.KindTable,
		Checksum:  ident.Checksum(sqlText),
		Status:    migrate.StatusRecorded,
	}
}

func TestEnsureInitializedIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "migrations")

	require.NoError(t, s.EnsureInitialized())
	rec := testRecord("100", "CREATE TABLE a (id int)")
	require.NoError(t, s.Append(rec))

	// A second call must not reset the index.
	require.NoError(t, s.EnsureInitialized())
	records, err := s.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestListEmptyWhenIndexMissing(t *testing.T) {
	s := New(afero.NewMemMapFs(), "migrations")
	records, err := s.List()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestAppendListRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	rec := testRecord("101", "CREATE TABLE tasks (id SERIAL PRIMARY KEY)")
	rec.Description = "tasks table"
	rec.Inverse = &migrate.Inverse{Kind: migrate.KindTable, Name: "tasks"}

	require.NoError(t, s.Append(rec))
	records, err := s.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, rec, records[0])
}

func TestListPreservesOrder(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(testRecord(fmt.Sprintf("10%d", i), "CREATE TABLE t (id int)")))
	}
	records, err := s.List()
	require.NoError(t, err)
	require.Len(t, records, 5)
	for i := 1; i < len(records); i++ {
		require.Less(t, records[i-1].ID, records[i].ID)
	}
}

func TestSQLFileFormat(t *testing.T) {
	s, fs := newTestStore(t)
	rec := testRecord("102", "CREATE TABLE tasks (id SERIAL PRIMARY KEY)")
	require.NoError(t, s.Append(rec))

	raw, err := afero.ReadFile(fs, "migrations/102.sql")
	require.NoError(t, err)
	contents := string(raw)
	require.Contains(t, contents, "-- Migration: table_migration_test\n")
	require.Contains(t, contents, "-- Type: table\n")
	require.Contains(t, contents, "-- Description: No description provided\n")
	require.Contains(t, contents, "-- Timestamp: 2026-03-14T09:26:53Z\n")
	require.Equal(t, rec.SQL, sqlFileBody(contents))
}

func TestRemove(t *testing.T) {
	s, fs := newTestStore(t)
	require.NoError(t, s.Append(testRecord("103", "CREATE TABLE a (id int)")))
	require.NoError(t, s.Append(testRecord("104", "CREATE TABLE b (id int)")))

	require.NoError(t, s.Remove("103"))

	records, err := s.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "104", records[0].ID)

	exists, err := afero.Exists(fs, "migrations/103.sql")
	require.NoError(t, err)
	require.False(t, exists, "SQL file should be deleted with its record")
}

func TestRemoveUnknownID(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.Remove("nope")
	require.ErrorIs(t, err, migrate.ErrNotFound)
}

func TestRemoveToleratesMissingFile(t *testing.T) {
	s, fs := newTestStore(t)
	require.NoError(t, s.Append(testRecord("105", "CREATE TABLE a (id int)")))
	require.NoError(t, fs.Remove("migrations/105.sql"))

	// Prior partial cleanup must not block the index removal.
	require.NoError(t, s.Remove("105"))
	records, err := s.List()
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestSetStatus(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Append(testRecord("106", "CREATE TABLE a (id int)")))

	require.NoError(t, s.SetStatus("106", migrate.StatusApplied))
	records, err := s.List()
	require.NoError(t, err)
	require.Equal(t, migrate.StatusApplied, records[0].Status)

	require.ErrorIs(t, s.SetStatus("nope", migrate.StatusApplied), migrate.ErrNotFound)
}

func TestVerifyDetectsTamperedChecksum(t *testing.T) {
	s, _ := newTestStore(t)
	rec := testRecord("107", "CREATE TABLE a (id int)")
	rec.Checksum = "0000"
	require.NoError(t, s.Append(rec))

	issues, err := s.Verify()
	require.NoError(t, err)
	require.Len(t, issues, 1)
	require.Equal(t, "107", issues[0].ID)
}

func TestVerifyDetectsEditedSQLFile(t *testing.T) {
	s, fs := newTestStore(t)
	require.NoError(t, s.Append(testRecord("108", "CREATE TABLE a (id int)")))

	raw, err := afero.ReadFile(fs, "migrations/108.sql")
	require.NoError(t, err)
	edited := string(raw) + " -- tampered"
	require.NoError(t, afero.WriteFile(fs, "migrations/108.sql", []byte(edited), 0o644))

	issues, err := s.Verify()
	require.NoError(t, err)
	require.Len(t, issues, 1)
}

func TestVerifyCleanLog(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Append(testRecord("109", "CREATE TABLE a (id int)")))
	issues, err := s.Verify()
	require.NoError(t, err)
	require.Empty(t, issues)
}

func TestRegenerateFiles(t *testing.T) {
	s, fs := newTestStore(t)
	rec := testRecord("110", "CREATE TABLE a (id int)")
	require.NoError(t, s.Append(rec))
	require.NoError(t, fs.Remove("migrations/110.sql"))

	require.NoError(t, s.RegenerateFiles())
	raw, err := afero.ReadFile(fs, "migrations/110.sql")
	require.NoError(t, err)
	require.Equal(t, rec.SQL, sqlFileBody(string(raw)))
}

func TestIndexHasMigrationsKey(t *testing.T) {
	s, fs := newTestStore(t)
	require.NoError(t, s.Append(testRecord("111", "CREATE TABLE a (id int)")))

	raw, err := afero.ReadFile(fs, "migrations/migrations.json")
	require.NoError(t, err)
	require.Contains(t, string(raw), `"migrations"`)
}

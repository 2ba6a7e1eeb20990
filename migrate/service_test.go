package migrate_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dbkeeper/dbkeeper/migrate"
	"github.com/dbkeeper/dbkeeper/migrate/ident"
	"github.com/dbkeeper/dbkeeper/migrate/revert"
)

// memStore keeps the log in memory so orchestration can be tested without a
// filesystem.
type memStore struct {
	records []migrate.Record
}

func (m *memStore) EnsureInitialized() error { return nil }

func (m *memStore) Append(rec migrate.Record) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) List() ([]migrate.Record, error) {
	return append([]migrate.Record(nil), m.records...), nil
}

func (m *memStore) Remove(id string) error {
	for i, rec := range m.records {
		if rec.ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return migrate.ErrNotFound
}

func (m *memStore) SetStatus(id string, status migrate.Status) error {
	for i := range m.records {
		if m.records[i].ID == id {
			m.records[i].Status = status
			return nil
		}
	}
	return migrate.ErrNotFound
}

func (m *memStore) Verify() ([]*migrate.IntegrityError, error) { return nil, nil }

// recordingApplier tracks every Apply call and can be told to fail on a
// particular statement.
type recordingApplier struct {
	applied []migrate.Record
	failSQL string
}

func (a *recordingApplier) Apply(_ context.Context, _ migrate.Conn, rec migrate.Record) error {
	if a.failSQL != "" && rec.SQL == a.failSQL {
		return errors.New("syntax error at or near \"boom\"")
	}
	a.applied = append(a.applied, rec)
	return nil
}

type stubConn struct{}

func (stubConn) BeginTx(context.Context, *sql.TxOptions) (*sql.Tx, error) {
	return nil, errors.New("stub connection cannot begin transactions")
}
func (stubConn) Close() error { return nil }

type stubConns struct{ acquired int }

func (s *stubConns) Acquire(context.Context) (migrate.Conn, error) {
	s.acquired++
	return stubConn{}, nil
}

func newTestService() (*migrate.Service, *memStore, *recordingApplier) {
	store := &memStore{}
	app := &recordingApplier{}
	svc := migrate.NewService(store, app, revert.New(), &stubConns{})
	return svc, store, app
}

func seed(store *memStore, id, sqlText string, kind migrate.Kind) migrate.Record {
	rec := migrate.Record{
		ID:       id,
		Name:     string(kind) + "_migration_seed",
		SQL:      sqlText,
		Kind:     kind,
		Checksum: ident.Checksum(sqlText),
		Status:   migrate.StatusRecorded,
	}
	store.records = append(store.records, rec)
	return rec
}

func TestCreateAndApply(t *testing.T) {
	svc, store, app := newTestService()

	rec, err := svc.CreateAndApply(context.Background(), migrate.KindTable,
		"CREATE TABLE tasks (id SERIAL PRIMARY KEY)", "tasks table")
	require.NoError(t, err)

	require.NotEmpty(t, rec.ID)
	require.Equal(t, ident.Checksum(rec.SQL), rec.Checksum)
	require.Equal(t, migrate.StatusApplied, rec.Status)
	require.NotNil(t, rec.Inverse)
	require.Equal(t, "tasks", rec.Inverse.Name)

	require.Len(t, app.applied, 1)
	require.Len(t, store.records, 1)
	require.Equal(t, migrate.StatusApplied, store.records[0].Status)
}

func TestCreateAndApplyUnknownKind(t *testing.T) {
	svc, store, _ := newTestService()
	_, err := svc.CreateAndApply(context.Background(), migrate.Kind("view"), "CREATE VIEW v AS SELECT 1", "")
	require.Error(t, err)
	require.Empty(t, store.records, "nothing should be recorded for an invalid kind")
}

func TestCreateAndApplyFailureLeavesRecord(t *testing.T) {
	store := &memStore{}
	app := &recordingApplier{failSQL: "CREATE TABLE broken ("}
	svc := migrate.NewService(store, app, revert.New(), &stubConns{})

	rec, err := svc.CreateAndApply(context.Background(), migrate.KindTable, "CREATE TABLE broken (", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "recorded but not applied")

	// The failed migration stays in the log as forensic evidence.
	require.NotEmpty(t, rec.ID)
	require.Len(t, store.records, 1)
	require.Equal(t, migrate.StatusRecorded, store.records[0].Status)
}

func TestApplyPendingAll(t *testing.T) {
	svc, store, app := newTestService()
	seed(store, "100", "CREATE TABLE a (id int)", migrate.KindTable)
	seed(store, "101", "CREATE TABLE b (id int)", migrate.KindTable)

	applied, err := svc.ApplyPending(context.Background(), "", false)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	require.Len(t, app.applied, 2)
	require.Equal(t, migrate.StatusApplied, store.records[0].Status)
	require.Equal(t, migrate.StatusApplied, store.records[1].Status)
}

func TestApplyPendingFromID(t *testing.T) {
	svc, store, app := newTestService()
	seed(store, "100", "CREATE TABLE a (id int)", migrate.KindTable)
	second := seed(store, "101", "CREATE TABLE b (id int)", migrate.KindTable)
	seed(store, "102", "CREATE TABLE c (id int)", migrate.KindTable)

	applied, err := svc.ApplyPending(context.Background(), second.ID, false)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	require.Equal(t, "101", applied[0].ID)
	require.Equal(t, "102", applied[1].ID)

	// The first record was never applied.
	require.Len(t, app.applied, 2)
	require.Equal(t, migrate.StatusRecorded, store.records[0].Status)
}

func TestApplyPendingUnknownFromID(t *testing.T) {
	svc, store, app := newTestService()
	seed(store, "100", "CREATE TABLE a (id int)", migrate.KindTable)

	_, err := svc.ApplyPending(context.Background(), "nope", false)
	require.ErrorIs(t, err, migrate.ErrNotFound)
	require.Empty(t, app.applied, "an unmatched from id must not apply anything")
}

func TestApplyPendingSkipsApplied(t *testing.T) {
	svc, store, app := newTestService()
	rec := seed(store, "100", "CREATE TABLE a (id int)", migrate.KindTable)
	store.records[0].Status = migrate.StatusApplied
	seed(store, "101", "CREATE TABLE b (id int)", migrate.KindTable)

	applied, err := svc.ApplyPending(context.Background(), "", false)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	require.Equal(t, "101", applied[0].ID)

	// force re-runs everything, including rec.
	app.applied = nil
	applied, err = svc.ApplyPending(context.Background(), "", true)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	require.Equal(t, rec.ID, applied[0].ID)
}

func TestApplyPendingAbortsBatchOnFailure(t *testing.T) {
	store := &memStore{}
	app := &recordingApplier{failSQL: "CREATE TABLE b (id int)"}
	svc := migrate.NewService(store, app, revert.New(), &stubConns{})

	seed(store, "100", "CREATE TABLE a (id int)", migrate.KindTable)
	seed(store, "101", "CREATE TABLE b (id int)", migrate.KindTable)
	seed(store, "102", "CREATE TABLE c (id int)", migrate.KindTable)

	applied, err := svc.ApplyPending(context.Background(), "", false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "101", "the error must identify the failing record")
	require.Contains(t, err.Error(), "syntax error", "the database error must be preserved")
	require.Len(t, applied, 1)
	require.Len(t, app.applied, 1, "the batch stops at the first failure")
	require.Equal(t, migrate.StatusRecorded, store.records[2].Status)
}

func TestRevertLatest(t *testing.T) {
	svc, store, app := newTestService()
	seed(store, "100", "CREATE TABLE a (id int)", migrate.KindTable)
	seed(store, "101", "CREATE TABLE tasks (id SERIAL PRIMARY KEY)", migrate.KindTable)

	result, err := svc.Revert(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, "101", result.Record.ID)
	require.Equal(t, "DROP TABLE IF EXISTS tasks", result.RevertSQL)

	// Exactly the reverted record is gone; the undo ran through the applier.
	require.Len(t, store.records, 1)
	require.Equal(t, "100", store.records[0].ID)
	require.Len(t, app.applied, 1)
	require.Equal(t, "DROP TABLE IF EXISTS tasks", app.applied[0].SQL)
}

func TestRevertByID(t *testing.T) {
	svc, store, _ := newTestService()
	seed(store, "100", "CREATE TABLE a (id int)", migrate.KindTable)
	seed(store, "101", "CREATE TABLE b (id int)", migrate.KindTable)

	result, err := svc.Revert(context.Background(), "100")
	require.NoError(t, err)
	require.Equal(t, "100", result.Record.ID)
	require.Len(t, store.records, 1)
	require.Equal(t, "101", store.records[0].ID)
}

func TestRevertEmptyStore(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Revert(context.Background(), "")
	require.ErrorIs(t, err, migrate.ErrNotFound)
}

func TestRevertUnknownID(t *testing.T) {
	svc, store, _ := newTestService()
	seed(store, "100", "CREATE TABLE a (id int)", migrate.KindTable)
	_, err := svc.Revert(context.Background(), "nope")
	require.ErrorIs(t, err, migrate.ErrNotFound)
	require.Len(t, store.records, 1)
}

func TestRevertAlterUnsupported(t *testing.T) {
	svc, store, app := newTestService()
	seed(store, "100", "ALTER TABLE tasks ADD COLUMN age INTEGER", migrate.KindAlter)

	_, err := svc.Revert(context.Background(), "")
	require.ErrorIs(t, err, migrate.ErrUnsupportedKind)
	require.Len(t, store.records, 1, "an unsupported revert must not touch the log")
	require.Empty(t, app.applied)
}

func TestRevertKeepsRecordWhenExecutionFails(t *testing.T) {
	store := &memStore{}
	app := &recordingApplier{failSQL: "DROP TABLE IF EXISTS tasks"}
	svc := migrate.NewService(store, app, revert.New(), &stubConns{})

	seed(store, "100", "CREATE TABLE tasks (id SERIAL PRIMARY KEY)", migrate.KindTable)

	_, err := svc.Revert(context.Background(), "")
	require.Error(t, err)
	require.Len(t, store.records, 1, "history must survive a failed revert")
}

func TestListNeverTouchesDatabase(t *testing.T) {
	store := &memStore{}
	svc := migrate.NewService(store, &recordingApplier{}, revert.New(), nil)
	seed(store, "100", "CREATE TABLE a (id int)", migrate.KindTable)

	// A nil connection source would panic if List reached for the database.
	records, err := svc.List()
	require.NoError(t, err)
	require.Len(t, records, 1)
}

package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dbkeeper/dbkeeper/internal/debug"
	"github.com/dbkeeper/dbkeeper/migrate/ident"
)

// Conn is the slice of *sql.Conn the migration core needs: one transaction
// at a time on a dedicated connection, released when the operation ends.
type Conn interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
	Close() error
}

// ConnSource hands out scoped database connections. The caller owns the
// returned Conn for the duration of one operation and must Close it on every
// exit path.
type ConnSource interface {
	Acquire(ctx context.Context) (Conn, error)
}

// Store is the durable migration log. Implementations own the index and the
// SQL file set exclusively; nothing else writes to them.
type Store interface {
	EnsureInitialized() error
	Append(Record) error
	List() ([]Record, error)
	Remove(id string) error
	SetStatus(id string, status Status) error
	Verify() ([]*IntegrityError, error)
}

// Applier executes one migration transactionally.
type Applier interface {
	Apply(ctx context.Context, conn Conn, rec Record) error
}

// RevertPlanner derives undo statements. DeriveInverse runs at creation time
// so the structured descriptor is stored with the record; Synthesize runs at
// revert time, preferring the descriptor and falling back to text extraction.
type RevertPlanner interface {
	DeriveInverse(kind Kind, sqlText string) *Inverse
	Synthesize(rec Record) (string, error)
}

// RevertResult reports what a revert executed.
type RevertResult struct {
	Record    Record
	RevertSQL string
}

// Service coordinates the store, the applier and the revert planner for the
// caller-facing operations. A single mutex serializes mutating operations:
// the index file has no other concurrency control, and interleaved writers
// would corrupt it.
type Service struct {
	store   Store
	applier Applier
	planner RevertPlanner
	conns   ConnSource

	mu sync.Mutex
}

// NewService wires the migration subsystem together. Construction happens
// once at the composition root; there is no package-level instance.
func NewService(store Store, applier Applier, planner RevertPlanner, conns ConnSource) *Service {
	return &Service{store: store, applier: applier, planner: planner, conns: conns}
}

// CreateAndApply records sqlText as a new migration and immediately executes
// it on a freshly acquired connection. If execution fails the record stays in
// the log with status "recorded": the log answers "what was intended", and
// the unapplied entry is the forensic evidence of the failure.
func (s *Service) CreateAndApply(ctx context.Context, kind Kind, sqlText, description string) (Record, error) {
	if !kind.Valid() {
		return Record{}, fmt.Errorf("unknown migration kind %q", kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.EnsureInitialized(); err != nil {
		return Record{}, err
	}

	now := time.Now().UTC()
	rec := Record{
		ID:          ident.NewID(),
		Name:        fmt.Sprintf("%s_migration_%s", kind, now.Format("20060102_150405")),
		CreatedAt:   now,
		SQL:         sqlText,
		Kind:        kind,
		Description: description,
		Checksum:    ident.Checksum(sqlText),
		Status:      StatusRecorded,
		Inverse:     s.planner.DeriveInverse(kind, sqlText),
	}
	if err := s.store.Append(rec); err != nil {
		return Record{}, fmt.Errorf("failed to record migration: %w", err)
	}

	conn, err := s.conns.Acquire(ctx)
	if err != nil {
		return rec, fmt.Errorf("migration %s recorded but not applied: %w", rec.ID, err)
	}
	defer conn.Close()

	if err := s.applier.Apply(ctx, conn, rec); err != nil {
		return rec, fmt.Errorf("migration %s recorded but not applied: %w", rec.ID, err)
	}
	if err := s.store.SetStatus(rec.ID, StatusApplied); err != nil {
		return rec, fmt.Errorf("migration %s applied but status not updated: %w", rec.ID, err)
	}
	rec.Status = StatusApplied
	debug.Info("migration applied", "id", rec.ID, "name", rec.Name)
	return rec, nil
}

// List returns the migration log in creation order. It never touches the
// database.
func (s *Service) List() ([]Record, error) {
	if err := s.store.EnsureInitialized(); err != nil {
		return nil, err
	}
	return s.store.List()
}

// ApplyPending applies recorded migrations in order. When fromID is set the
// run starts at that record inclusive, and an id that matches nothing fails
// with ErrNotFound rather than silently applying nothing. Records already
// marked applied are skipped unless force is set. The first failure aborts
// the rest of the batch with the failing record identified in the error.
func (s *Service) ApplyPending(ctx context.Context, fromID string, force bool) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.EnsureInitialized(); err != nil {
		return nil, err
	}
	records, err := s.store.List()
	if err != nil {
		return nil, err
	}

	start := 0
	if fromID != "" {
		start = -1
		for i := range records {
			if records[i].ID == fromID {
				start = i
				break
			}
		}
		if start < 0 {
			return nil, fmt.Errorf("migration %s: %w", fromID, ErrNotFound)
		}
	}

	conn, err := s.conns.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	var applied []Record
	for _, rec := range records[start:] {
		if rec.Status == StatusApplied && !force {
			debug.Debug("skipping applied migration", "id", rec.ID)
			continue
		}
		if err := s.applier.Apply(ctx, conn, rec); err != nil {
			return applied, fmt.Errorf("migration %s (%s) failed: %w", rec.ID, rec.Name, err)
		}
		if err := s.store.SetStatus(rec.ID, StatusApplied); err != nil {
			return applied, fmt.Errorf("migration %s applied but status not updated: %w", rec.ID, err)
		}
		rec.Status = StatusApplied
		applied = append(applied, rec)
	}
	return applied, nil
}

// Revert undoes the migration with the given id, or the most recent one when
// id is empty. The undo SQL executes with the same transactional guarantees
// as a forward apply, and the log entry is removed only after that commit:
// a failed revert must not lose its history.
func (s *Service) Revert(ctx context.Context, id string) (RevertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.EnsureInitialized(); err != nil {
		return RevertResult{}, err
	}
	records, err := s.store.List()
	if err != nil {
		return RevertResult{}, err
	}
	if len(records) == 0 {
		return RevertResult{}, fmt.Errorf("no migrations to revert: %w", ErrNotFound)
	}

	var target Record
	if id == "" {
		target = records[len(records)-1]
	} else {
		found := false
		for _, rec := range records {
			if rec.ID == id {
				target = rec
				found = true
				break
			}
		}
		if !found {
			return RevertResult{}, fmt.Errorf("migration %s: %w", id, ErrNotFound)
		}
	}

	revertSQL, err := s.planner.Synthesize(target)
	if err != nil {
		return RevertResult{}, err
	}

	conn, err := s.conns.Acquire(ctx)
	if err != nil {
		return RevertResult{}, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	undo := Record{
		ID:   target.ID,
		Name: target.Name + "_revert",
		Kind: target.Kind,
		SQL:  revertSQL,
	}
	if err := s.applier.Apply(ctx, conn, undo); err != nil {
		return RevertResult{}, fmt.Errorf("revert of migration %s failed: %w", target.ID, err)
	}
	if err := s.store.Remove(target.ID); err != nil {
		return RevertResult{}, fmt.Errorf("revert of migration %s executed but log entry not removed: %w", target.ID, err)
	}
	debug.Info("migration reverted", "id", target.ID, "name", target.Name)
	return RevertResult{Record: target, RevertSQL: revertSQL}, nil
}

// Verify recomputes checksums across the whole log and reports every
// mismatch.
func (s *Service) Verify() ([]*IntegrityError, error) {
	if err := s.store.EnsureInitialized(); err != nil {
		return nil, err
	}
	return s.store.Verify()
}

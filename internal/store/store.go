// Package store implements the local durable store on SQLite with WAL mode.
// Mutations are staged in memory and committed by Save in a single
// transaction — commit-all or rollback-all, never interleaved partial writes
// visible to concurrent readers.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// walJournalSizeLimit caps WAL growth at 64 MiB.
const walJournalSizeLimit = 67108864

// Kind names an entity table for generic operations (delete, mark-synced).
type Kind string

// Entity kinds, matching table names.
const (
	KindCategory    Kind = "categories"
	KindAccount     Kind = "accounts"
	KindBudget      Kind = "budgets"
	KindTransaction Kind = "transactions"
)

// stagedOp is one pending mutation awaiting the next Save.
type stagedOp struct {
	query string
	args  []any
}

// Store wraps the SQLite database. Reads go through prepared statements;
// writes are staged and flushed atomically by Save. The staging list is
// guarded by a mutex so observers and the engine can stage from different
// goroutines, though within one sync pass staging is sequential.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu     sync.Mutex
	staged []stagedOp

	catStmts     categoryStatements
	acctStmts    accountStatements
	budgetStmts  budgetStatements
	txnStmts     transactionStatements
	profileStmts profileStatements
}

type categoryStatements struct {
	list, listUnsynced *sql.Stmt
}

type accountStatements struct {
	list, listUnsynced *sql.Stmt
}

type budgetStatements struct {
	list, listUnsynced *sql.Stmt
}

type transactionStatements struct {
	list, listUnsynced *sql.Stmt
}

type profileStatements struct {
	get *sql.Stmt
}

// Open creates a Store at dbPath, applying pragmas and migrations and
// preparing read statements. Use ":memory:" for tests.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening local store", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	// The driver opens a new connection per goroutine by default; staged
	// writes assume a single connection so the Save transaction sees every
	// prior read's snapshot.
	db.SetMaxOpenConns(1)

	if err := setPragmas(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareStatements(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: prepare statements: %w", err)
	}

	return s, nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("store: set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", slog.String("pragma", p.desc))
	}

	return nil
}

func (s *Store) prepareStatements(ctx context.Context) error {
	prep := func(dst **sql.Stmt, query string) error {
		stmt, err := s.db.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("%q: %w", query, err)
		}

		*dst = stmt

		return nil
	}

	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.catStmts.list, selectCategories},
		{&s.catStmts.listUnsynced, selectCategories + " WHERE is_synced = 0"},
		{&s.acctStmts.list, selectAccounts},
		{&s.acctStmts.listUnsynced, selectAccounts + " WHERE is_synced = 0"},
		{&s.budgetStmts.list, selectBudgets},
		{&s.budgetStmts.listUnsynced, selectBudgets + " WHERE is_synced = 0"},
		{&s.txnStmts.list, selectTransactions + " ORDER BY tx_date DESC"},
		{&s.txnStmts.listUnsynced, selectTransactions + " WHERE is_synced = 0"},
		{&s.profileStmts.get, selectProfile},
	}

	for _, p := range stmts {
		if err := prep(p.dst, p.query); err != nil {
			return err
		}
	}

	return nil
}

// Close releases prepared statements and the database handle.
func (s *Store) Close() error {
	for _, stmt := range []*sql.Stmt{
		s.catStmts.list, s.catStmts.listUnsynced,
		s.acctStmts.list, s.acctStmts.listUnsynced,
		s.budgetStmts.list, s.budgetStmts.listUnsynced,
		s.txnStmts.list, s.txnStmts.listUnsynced,
		s.profileStmts.get,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}

	return s.db.Close()
}

// stage appends a mutation for the next Save.
func (s *Store) stage(query string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.staged = append(s.staged, stagedOp{query: query, args: args})
}

// StagedCount returns the number of mutations awaiting Save.
func (s *Store) StagedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.staged)
}

// Discard drops all staged mutations without applying them. The engine calls
// this when a pass fails mid-sequence so a later pass starts clean.
func (s *Store) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.staged) > 0 {
		s.logger.Debug("discarding staged mutations", slog.Int("count", len(s.staged)))
	}

	s.staged = nil
}

// Save applies every mutation staged since the previous Save in one
// transaction. On failure nothing is applied and the staged list is
// discarded, so a retried pass re-stages from scratch rather than replaying
// half-valid work.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	ops := s.staged
	s.staged = nil
	s.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin save: %w", err)
	}

	for _, op := range ops {
		if _, err := tx.ExecContext(ctx, op.query, op.args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: save: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit save: %w", err)
	}

	s.logger.Debug("local save committed", slog.Int("mutations", len(ops)))

	return nil
}

// Delete removes one row immediately, outside the staged batch. Deletions
// are user-initiated and propagate to the remote store directly rather than
// through the sync queue.
func (s *Store) Delete(ctx context.Context, kind Kind, id string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", kind), id)
	if err != nil {
		return fmt.Errorf("store: delete %s %s: %w", kind, id, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		s.logger.Debug("delete matched no rows", slog.String("kind", string(kind)), slog.String("id", id))
	}

	return nil
}

// StageMarkSynced stages an is_synced flip for one row. Used by the upload
// queue after the remote batch is confirmed.
func (s *Store) StageMarkSynced(kind Kind, id string) {
	s.stage(fmt.Sprintf("UPDATE %s SET is_synced = 1 WHERE id = ?", kind), id)
}

// CountUnsynced returns the number of locally modified rows awaiting upload
// across all syncable tables.
func (s *Store) CountUnsynced(ctx context.Context) (int, error) {
	const q = `SELECT
		(SELECT COUNT(*) FROM categories WHERE is_synced = 0) +
		(SELECT COUNT(*) FROM accounts WHERE is_synced = 0) +
		(SELECT COUNT(*) FROM budgets WHERE is_synced = 0) +
		(SELECT COUNT(*) FROM transactions WHERE is_synced = 0)`

	var n int
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count unsynced: %w", err)
	}

	return n, nil
}

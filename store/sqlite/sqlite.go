/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface of the engine using SQLite. The
  postgres package implements the same interfaces with pgx; only the SQL
  dialect differs.

INTERFACES IMPLEMENTED:
  credit.TxStore:      credits, available credit, receivable approvals, events
  credit.PoolStore:    pool configuration documents
  receivable.Registry: minted receivables

APPEND-ONLY ENFORCEMENT:
  The events table is append-only:
  - No UPDATE or DELETE statements on events
  - idempotency_key is UNIQUE, so a replayed operation fails instead of
    writing a second event

KEY TABLES:
  credits:              config, record and due detail of each credit hash
  available_credit:     counter of receivable-backed lines
  receivable_approvals: one row per approved receivable
  events:               audit log of every mutation
  pools:                pool configuration documents
  receivables:          minted receivables

ENCODING:
  Money is TEXT holding a decimal string so no precision is lost. Times
  are INTEGER unix seconds, 0 for the zero time.

CONCURRENCY:
  A single connection is used so that ":memory:" databases are shared by
  every caller, and sync.RWMutex keeps reads out of running transactions.

USAGE:
  store, err := sqlite.New("./data/credit.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  manager := credit.NewManager(credit.ManagerDeps{Store: store, ...})

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - credit/store.go: Interface definitions
  - credit/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/credit-engine/credit"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Credits, one row per credit hash
	CREATE TABLE IF NOT EXISTS credits (
		hash TEXT PRIMARY KEY,
		pool_id TEXT NOT NULL,
		borrower TEXT NOT NULL,
		receivable_id INTEGER NOT NULL DEFAULT 0,
		config_json TEXT NOT NULL,
		unbilled_principal TEXT NOT NULL,
		next_due_date INTEGER NOT NULL,
		next_due TEXT NOT NULL,
		yield_due TEXT NOT NULL,
		total_past_due TEXT NOT NULL,
		missed_periods INTEGER NOT NULL,
		remaining_periods INTEGER NOT NULL,
		state INTEGER NOT NULL,
		late_fee_updated_date INTEGER NOT NULL,
		late_fee TEXT NOT NULL,
		yield_past_due TEXT NOT NULL,
		principal_past_due TEXT NOT NULL,
		committed TEXT NOT NULL,
		accrued TEXT NOT NULL,
		paid TEXT NOT NULL,
		maturity_date INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_credits_state
		ON credits(state);
	CREATE INDEX IF NOT EXISTS idx_credits_borrower
		ON credits(borrower);

	-- Available credit of receivable-backed lines
	CREATE TABLE IF NOT EXISTS available_credit (
		credit_hash TEXT PRIMARY KEY,
		amount TEXT NOT NULL
	);

	-- Receivable approvals, at most one per receivable
	CREATE TABLE IF NOT EXISTS receivable_approvals (
		receivable_id INTEGER PRIMARY KEY,
		borrower TEXT NOT NULL,
		credit_hash TEXT NOT NULL,
		amount TEXT NOT NULL,
		incremental TEXT NOT NULL,
		approved_by TEXT NOT NULL,
		approved_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_approvals_credit
		ON receivable_approvals(credit_hash);

	-- Events (append-only audit log)
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		credit_hash TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		at INTEGER NOT NULL,
		actor_id TEXT,
		idempotency_key TEXT UNIQUE,
		details_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_credit
		ON events(credit_hash, seq);

	-- Pools
	CREATE TABLE IF NOT EXISTS pools (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		config_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	-- Receivables
	CREATE TABLE IF NOT EXISTS receivables (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		currency TEXT,
		reference_id TEXT,
		created_at INTEGER NOT NULL,
		maturity_date INTEGER NOT NULL,
		state INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_receivables_owner
		ON receivables(owner);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (credit.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store credit.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// querier is what *sql.DB and *sql.Tx have in common.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn runs the credit.Store queries on a database or a transaction. The
// Store methods wrap it with locking; inside WithTx it is used as is.
type conn struct {
	q querier
}

func (s *Store) direct() *conn { return &conn{q: s.db} }

func (s *Store) GetCredit(ctx context.Context, hash credit.CreditHash) (*credit.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.direct().GetCredit(ctx, hash)
}

func (s *Store) SaveCredit(ctx context.Context, c credit.Credit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().SaveCredit(ctx, c)
}

func (s *Store) ListCredits(ctx context.Context, states ...credit.CreditState) ([]credit.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.direct().ListCredits(ctx, states...)
}

func (s *Store) AvailableCredit(ctx context.Context, hash credit.CreditHash) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.direct().AvailableCredit(ctx, hash)
}

func (s *Store) SetAvailableCredit(ctx context.Context, hash credit.CreditHash, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().SetAvailableCredit(ctx, hash, amount)
}

func (s *Store) GetReceivableApproval(ctx context.Context, id credit.ReceivableID) (*credit.ReceivableApproval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.direct().GetReceivableApproval(ctx, id)
}

func (s *Store) SaveReceivableApproval(ctx context.Context, a credit.ReceivableApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().SaveReceivableApproval(ctx, a)
}

func (s *Store) AppendEvent(ctx context.Context, e credit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct().AppendEvent(ctx, e)
}

func (s *Store) Events(ctx context.Context, hash credit.CreditHash) ([]credit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.direct().Events(ctx, hash)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// unixSeconds encodes t, mapping the zero time to 0.
func unixSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnixSeconds(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

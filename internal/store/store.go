// Package store provides the durable local record store for stitchsync.
//
// The store is an embedded SQLite database (ncruces/go-sqlite3) with one
// table per synchronized entity kind plus an append-only change log and
// a small sync-state table. WAL mode allows concurrent readers during
// writes.
//
// Every row carries a local-only dirty flag: true means the row has
// local changes not yet confirmed present on the remote store. All
// mutations are local and never block on the network; each mutation
// appends one change-log entry in the same transaction, so a mutation
// is durable only together with its audit entry.
//
// Deletes are soft: the row gets a deleted_at tombstone and is marked
// dirty so the deletion replicates to the remote store like any other
// field change. Read paths for the UI exclude tombstoned rows; the
// sync paths include them.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/aliakbrhasan/stitchsync/internal/model"
)

// ErrNotFound is returned when a mutation or lookup names a record id
// that does not exist (or has been deleted, for UI-facing paths).
var ErrNotFound = errors.New("record not found")

// timeFormat is the timestamp encoding used for all TEXT time columns.
// Nanosecond precision keeps updated_at strictly increasing across
// rapid successive writes, which last-write-wins depends on.
const timeFormat = time.RFC3339Nano

// Store wraps the SQLite connection for the local record store.
//
// Writes are serialized through an internal mutex: a UI edit and a
// pull-phase overwrite racing on the same record must not interleave.
// Write volume is human-paced, so one writer at a time is plenty.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.Mutex
}

// Open creates a new store at the given path.
//
// The database is created along with its schema if it doesn't exist.
// The caller must Close() the store when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	// WAL for concurrent reads, 5s busy timeout for writer contention.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the store, checkpointing the WAL first.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// initSchema creates all tables and indexes. Idempotent.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		label TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		measurements TEXT,  -- opaque JSON blob
		total_spent REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT,
		dirty INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		invoice_number TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		total REAL NOT NULL DEFAULT 0,
		paid_amount REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		issued_at TEXT NOT NULL,
		due_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT,
		dirty INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'received',
		total REAL NOT NULL DEFAULT 0,
		ordered_at TEXT NOT NULL,
		delivery_at TEXT,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT,
		dirty INTEGER NOT NULL DEFAULT 1
	);

	-- Append-only audit of local mutations. Entries are never updated
	-- except for the acknowledged flag, set when the record they
	-- describe is confirmed pushed.
	CREATE TABLE IF NOT EXISTS change_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		record_id TEXT NOT NULL,
		op TEXT NOT NULL,  -- create, update, delete
		at TEXT NOT NULL,
		acknowledged INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS sync_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_sync_at TEXT
	);

	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_customers_dirty ON customers(dirty);
	CREATE INDEX IF NOT EXISTS idx_customers_created ON customers(created_at);
	CREATE INDEX IF NOT EXISTS idx_invoices_dirty ON invoices(dirty);
	CREATE INDEX IF NOT EXISTS idx_invoices_created ON invoices(created_at);
	CREATE INDEX IF NOT EXISTS idx_invoices_customer ON invoices(customer_id);
	CREATE INDEX IF NOT EXISTS idx_orders_dirty ON orders(dirty);
	CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at);
	CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id);
	CREATE INDEX IF NOT EXISTS idx_changelog_ack ON change_log(acknowledged, kind, record_id);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// tableFor maps an entity kind to its table name.
func tableFor(kind model.Kind) (string, error) {
	switch kind {
	case model.KindCustomer:
		return "customers", nil
	case model.KindInvoice:
		return "invoices", nil
	case model.KindOrder:
		return "orders", nil
	default:
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
}

// withWriteTx runs fn inside a serialized write transaction.
func (s *Store) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nextCounter increments and returns the named counter inside tx.
func nextCounter(tx *sql.Tx, name string) (int64, error) {
	query := `
	INSERT INTO counters (name, value) VALUES (?, 1)
	ON CONFLICT(name) DO UPDATE SET value = value + 1
	RETURNING value
	`
	var n int64
	if err := tx.QueryRow(query, name).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to advance counter %s: %w", name, err)
	}
	return n, nil
}

// timeToNullString converts a time pointer to a nullable string for SQL.
func timeToNullString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(timeFormat), Valid: true}
}

// nullStringToTime converts a nullable SQL string to a time pointer.
func nullStringToTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(timeFormat, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

// parseTime parses a required timestamp column, tolerating bad data by
// returning the zero time.
func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

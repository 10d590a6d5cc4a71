// Package database provides SQLite persistence for certify.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// DB represents a database connection with additional functionality.
type DB struct {
	conn        *sql.DB
	path        string
	mu          sync.RWMutex
	maxConns    int
	busyTimeout time.Duration
	now         func() time.Time
}

// Option represents a functional option for configuring the database.
type Option func(*DB)

// WithMaxConnections sets the maximum number of open connections.
func WithMaxConnections(n int) Option {
	return func(db *DB) {
		db.maxConns = n
	}
}

// WithBusyTimeout sets the busy timeout for SQLite.
func WithBusyTimeout(timeout time.Duration) Option {
	return func(db *DB) {
		db.busyTimeout = timeout
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		db.now = now
	}
}

// New creates a new database connection with automatic initialization.
func New(path string, opts ...Option) (*DB, error) {
	db := &DB{
		path:        path,
		maxConns:    10,
		busyTimeout: 5 * time.Second,
		now:         func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(db)
	}
	if db.maxConns < 1 {
		db.maxConns = 1
	}

	// Foreign keys and the transaction lock mode must be set per connection,
	// so they go in the DSN rather than a one-off PRAGMA.
	params := fmt.Sprintf("_busy_timeout=%d&_txlock=immediate&_foreign_keys=on", db.busyTimeout.Milliseconds())
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	connStr := path + sep + params

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	conn.SetMaxOpenConns(db.maxConns)
	conn.SetMaxIdleConns(max(1, db.maxConns/2))
	if isMemory(path) {
		// An in-memory database disappears with its last connection.
		conn.SetConnMaxLifetime(0)
	} else {
		conn.SetConnMaxLifetime(time.Hour)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 10000",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("setting %s: %w", pragma, err)
		}
	}

	db.conn = conn

	if err := db.Migrate(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return db, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.conn
}

// Path returns the path the database was opened with.
func (db *DB) Path() string {
	return db.path
}

// BeginTx starts a new transaction with the given context.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, opts)
}

// ExecContext executes a query that doesn't return rows.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query that returns at most one row.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}

// InTransaction executes a function within a database transaction.
// Transactions begin IMMEDIATE, so fn holds the write lock for its whole duration.
// fn must only use tx; with a single-connection pool any other query blocks.
func (db *DB) InTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back transaction: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// NewMemoryDB creates an isolated in-memory database for testing.
// Each call gets its own named database so parallel tests never share state.
func NewMemoryDB() (*DB, error) {
	name := fmt.Sprintf("file:certify-%s?mode=memory&cache=shared", uuid.NewString())
	return New(name, WithMaxConnections(1))
}

// isUniqueViolation reports whether err is a SQLite unique constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func newID() string {
	return uuid.NewString()
}

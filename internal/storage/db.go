// Package storage owns the shared SQLite file used by the session and drift
// trackers.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DefaultBusyTimeoutMs is how long a connection waits on a locked database.
const DefaultBusyTimeoutMs = 5000

// DB represents a database connection with transaction helpers
type DB struct {
	conn          *sql.DB
	logger        *slog.Logger
	dbPath        string
	busyTimeoutMs int
	skipMigrate   bool
}

// Option configures Open.
type Option func(*DB)

// WithBusyTimeout overrides DefaultBusyTimeoutMs.
func WithBusyTimeout(ms int) Option {
	return func(db *DB) {
		if ms >= 0 {
			db.busyTimeoutMs = ms
		}
	}
}

// WithoutMigrate leaves the schema as found, for callers that only inspect
// migration status.
func WithoutMigrate() Option {
	return func(db *DB) { db.skipMigrate = true }
}

// Open opens or creates the SQLite database at dbPath and brings its schema up
// to date unless WithoutMigrate is given. Pragmas are part of the DSN so every pooled connection gets them.
func Open(dbPath string, logger *slog.Logger, opts ...Option) (*DB, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	db := &DB{
		logger:        logger,
		dbPath:        dbPath,
		busyTimeoutMs: DefaultBusyTimeoutMs,
	}
	for _, opt := range opts {
		opt(db)
	}

	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", db.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.conn = conn

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if db.skipMigrate {
		return db, nil
	}

	applied, err := db.Migrate(context.Background())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if applied > 0 {
		logger.Info("Database migrated", "path", dbPath, "applied", applied, "version", LatestVersion())
	} else {
		logger.Debug("Database schema is up to date", "path", dbPath)
	}

	return db, nil
}

func (db *DB) dsn() string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout("+strconv.Itoa(db.busyTimeoutMs)+")")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(ON)")
	q.Set("_txlock", "immediate")
	return db.dbPath + "?" + q.Encode()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.dbPath
}

// Logger returns the logger the database was opened with.
func (db *DB) Logger() *slog.Logger {
	return db.logger
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying sql.DB connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// WithTx executes fn within a transaction. The transaction is rolled back when
// fn returns an error or panics, and committed otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("failed to rollback transaction", "error", err, "rollback_error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// QueryRowContext executes a query that returns at most one row
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

// ExecContext executes a query without returning rows
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, args...)
}

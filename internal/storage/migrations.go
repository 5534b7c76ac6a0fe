package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// SchemaVersionKey is the meta row holding the applied schema version.
const SchemaVersionKey = "schema_version"

// Migration is one forward schema step.
type Migration struct {
	Version     int
	Description string
	Up          string
}

// migrations lists every schema step in ascending version order.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Create sessions table",
		Up: `
			CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				project_path TEXT NOT NULL,
				start_time TEXT NOT NULL,
				end_time TEXT,
				ai_tool TEXT,
				files_modified TEXT NOT NULL DEFAULT '[]',
				total_changes_loc INTEGER NOT NULL DEFAULT 0,
				violations_count INTEGER NOT NULL DEFAULT 0,
				entropy_score REAL NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_path);
		`,
	},
	{
		Version:     2,
		Description: "Create drift_snapshots table",
		Up: `
			CREATE TABLE IF NOT EXISTS drift_snapshots (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				file_path TEXT NOT NULL,
				session_id TEXT,
				timestamp TEXT NOT NULL,
				metrics_json TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_drift_path_ts ON drift_snapshots(file_path, timestamp);
		`,
	},
}

// requiredTables must exist once all migrations are applied.
var requiredTables = []string{"meta", "sessions", "drift_snapshots"}

// LatestVersion returns the highest known migration version.
func LatestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}

// Migrate applies every pending migration inside one transaction and returns
// how many were applied. Running it on an up-to-date database is a no-op.
func (db *DB) Migrate(ctx context.Context) (int, error) {
	applied := 0
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
			return fmt.Errorf("failed to create meta table: %w", err)
		}

		current, err := readVersion(ctx, tx)
		if err != nil {
			return err
		}

		target := current
		for _, m := range migrations {
			if m.Version <= current {
				continue
			}
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
			}
			db.logger.Debug("Applied migration", "version", m.Version, "description", m.Description)
			target = m.Version
			applied++
		}

		if applied == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			SchemaVersionKey, strconv.Itoa(target))
		return err
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readVersion(ctx context.Context, q rowQuerier) (int, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, SchemaVersionKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid schema version %q: %w", raw, err)
	}
	return v, nil
}

// SchemaVersion returns the applied schema version, 0 for a fresh file.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var name string
	err := db.conn.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return readVersion(ctx, db.conn)
}

// MigrationStatus reports how far the schema is from LatestVersion.
type MigrationStatus struct {
	Current int      `json:"current_version" yaml:"current_version"`
	Latest  int      `json:"latest_version" yaml:"latest_version"`
	Pending []string `json:"pending" yaml:"pending"`
}

// Status returns the current MigrationStatus.
func (db *DB) Status(ctx context.Context) (*MigrationStatus, error) {
	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	st := &MigrationStatus{Current: current, Latest: LatestVersion(), Pending: []string{}}
	for _, m := range migrations {
		if m.Version > current {
			st.Pending = append(st.Pending, fmt.Sprintf("%d: %s", m.Version, m.Description))
		}
	}
	return st, nil
}

// ValidateSchema checks that every required table exists.
func (db *DB) ValidateSchema(ctx context.Context) error {
	for _, table := range requiredTables {
		var name string
		err := db.conn.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("missing table: %s", table)
		}
		if err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
	}
	return nil
}

// Package storage opens the SQLite database behind the run ledger.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures the ledger tables exist. The path must be on a local filesystem.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}
	if err := CheckLocal(path); err != nil {
		return nil, fmt.Errorf("sqlite path: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The control loop is the only writer; one connection avoids SQLITE_BUSY
	// between it and API readers.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables and indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS task_run (
  id            TEXT PRIMARY KEY,
  session_id    TEXT NOT NULL,
  backlog       TEXT NOT NULL,
  task          TEXT NOT NULL,
  task_hash     TEXT NOT NULL,
  slot          INTEGER NOT NULL,
  status        TEXT NOT NULL,
  exit_code     INTEGER,
  dispatched_at TEXT NOT NULL,
  completed_at  TEXT,
  last_error    TEXT,
  stderr        TEXT
);`,
		`CREATE INDEX IF NOT EXISTS task_run_task_hash_idx ON task_run(task_hash);`,
		`CREATE INDEX IF NOT EXISTS task_run_status_idx ON task_run(status);`,
		`CREATE INDEX IF NOT EXISTS task_run_dispatched_at_idx ON task_run(dispatched_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}

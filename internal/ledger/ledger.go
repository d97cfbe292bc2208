// Package ledger records every dispatched task and its outcome in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/zeebo/blake3"
)

const maxStderrBytes = 64 * 1024

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned"
)

// Dispatch describes a task at the moment it is handed to a slot.
type Dispatch struct {
	RunID     string
	SessionID string
	Backlog   string
	Task      string
	Slot      int
	At        time.Time
}

// Outcome describes how a run ended.
type Outcome struct {
	Status    Status
	ExitCode  int
	LastError *string
	Stderr    string
	At        time.Time
}

// Run is one row of the ledger.
type Run struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"session_id"`
	Backlog      string     `json:"backlog"`
	Task         string     `json:"task"`
	TaskHash     string     `json:"task_hash"`
	Slot         int        `json:"slot"`
	Status       Status     `json:"status"`
	ExitCode     *int       `json:"exit_code,omitempty"`
	DispatchedAt time.Time  `json:"dispatched_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	LastError    *string    `json:"last_error,omitempty"`
}

var ErrRunNotFound = errors.New("run not found")

type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Fingerprint is the BLAKE3 digest of a task line, used to spot the same
// command being dispatched again after a restart.
func Fingerprint(task string) string {
	sum := blake3.Sum256([]byte(task))
	return hex.EncodeToString(sum[:])
}

// RecoverOrphans marks runs left running by an earlier process as abandoned.
// Their outcome is unknown; the processes were not ours to wait for.
func (l *Ledger) RecoverOrphans(ctx context.Context, currentSession string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	msg := "qrun exited before the run completed"
	res, err := l.db.ExecContext(ctx, `
UPDATE task_run
SET status = ?, completed_at = ?, last_error = ?
WHERE status = ? AND session_id <> ?;
`, StatusAbandoned, now, msg, StatusRunning, currentSession)
	if err != nil {
		return 0, fmt.Errorf("recover orphaned runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recover orphaned runs: %w", err)
	}
	return n, nil
}

// RecordDispatch inserts a running row and returns how many earlier runs had
// the same task line.
func (l *Ledger) RecordDispatch(ctx context.Context, d Dispatch) (int, error) {
	if d.RunID == "" {
		return 0, fmt.Errorf("run id is empty")
	}
	if d.At.IsZero() {
		d.At = time.Now()
	}
	hash := Fingerprint(d.Task)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prior int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_run WHERE task_hash = ?;`, hash).Scan(&prior); err != nil {
		return 0, fmt.Errorf("count prior runs: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO task_run(id, session_id, backlog, task, task_hash, slot, status, dispatched_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, d.RunID, d.SessionID, d.Backlog, d.Task, hash, d.Slot, StatusRunning, d.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return prior, nil
}

// RecordCompletion stores the outcome of a run.
func (l *Ledger) RecordCompletion(ctx context.Context, runID string, o Outcome) error {
	if runID == "" {
		return fmt.Errorf("run id is empty")
	}
	if o.Status != StatusSucceeded && o.Status != StatusFailed {
		return fmt.Errorf("invalid terminal status: %q", o.Status)
	}
	if o.At.IsZero() {
		o.At = time.Now()
	}

	var stderrVal any
	if o.Stderr != "" {
		s := o.Stderr
		if len(s) > maxStderrBytes {
			s = s[len(s)-maxStderrBytes:]
		}
		stderrVal = s
	}

	res, err := l.db.ExecContext(ctx, `
UPDATE task_run
SET status = ?, exit_code = ?, completed_at = ?, last_error = ?, stderr = ?
WHERE id = ?;
`, o.Status, o.ExitCode, o.At.UTC().Format(time.RFC3339Nano), o.LastError, stderrVal, runID)
	if err != nil {
		return fmt.Errorf("update run completion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run completion: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("complete %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT id, session_id, backlog, task, task_hash, slot, status, exit_code, dispatched_at, completed_at, last_error
FROM task_run
ORDER BY dispatched_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r            Run
			status       string
			exitCode     sql.NullInt64
			dispatchedAt string
			completedAt  sql.NullString
			lastError    sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Backlog, &r.Task, &r.TaskHash, &r.Slot, &status,
			&exitCode, &dispatchedAt, &completedAt, &lastError); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Status = Status(status)
		if exitCode.Valid {
			c := int(exitCode.Int64)
			r.ExitCode = &c
		}
		if t, err := time.Parse(time.RFC3339Nano, dispatchedAt); err == nil {
			r.DispatchedAt = t
		}
		if completedAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, completedAt.String); err == nil {
				r.CompletedAt = &t
			}
		}
		if lastError.Valid {
			r.LastError = &lastError.String
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// CountByStatus returns the number of runs in each status.
func (l *Ledger) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM task_run GROUP BY status;`)
	if err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[Status(status)] = n
	}
	return out, rows.Err()
}

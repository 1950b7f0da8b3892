// Package store persists run reports and the scenario queue in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Fixed-width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type HistoryStore struct {
	DB *sql.DB
}

func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serialises writers anyway, and ":memory:"
	// databases are per connection.
	db.SetMaxOpenConns(1)

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			task TEXT,
			state TEXT,
			pc INTEGER,
			steps INTEGER,
			error_kind TEXT,
			error TEXT,
			value TEXT,
			memory TEXT,
			scenario TEXT,
			started_at TEXT,
			finished_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS calls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT REFERENCES runs(id),
			idx INTEGER,
			capability TEXT,
			failed INTEGER,
			error TEXT,
			duration_ms INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task TEXT,
			scenario TEXT,
			status TEXT DEFAULT 'pending',
			run_id TEXT,
			state TEXT,
			enqueued_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_calls_run ON calls(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_queue_status ON queue(status);`,
	}
	for _, q := range queries {
		if _, err = db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialise history store: %w", err)
		}
	}

	return &HistoryStore{DB: db}, nil
}

func (h *HistoryStore) Close() error {
	return h.DB.Close()
}

// SaveRun stores a run and its calls in one transaction.
func (h *HistoryStore) SaveRun(ctx context.Context, r RunRecord) error {
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT OR REPLACE INTO runs
		(id, task, state, pc, steps, error_kind, error, value, memory, scenario, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query,
		r.ID, r.Task, r.State, r.PC, r.Steps, r.ErrorKind, r.Error, r.Value, r.Memory, r.Scenario,
		r.StartedAt.UTC().Format(timeLayout), r.FinishedAt.UTC().Format(timeLayout)); err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM calls WHERE run_id = ?`, r.ID); err != nil {
		return err
	}
	for _, c := range r.Calls {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO calls (run_id, idx, capability, failed, error, duration_ms) VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, c.Index, c.Capability, c.Failed, c.Error, c.DurationMS); err != nil {
			return fmt.Errorf("failed to save call of run %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// GetRun loads a run with its calls.
func (h *HistoryStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := h.DB.QueryRowContext(ctx, `
		SELECT id, task, state, pc, steps, error_kind, error, value, memory, scenario, started_at, finished_at
		FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := h.DB.QueryContext(ctx,
		`SELECT idx, capability, failed, error, duration_ms FROM calls WHERE run_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c CallRecord
		if err := rows.Scan(&c.Index, &c.Capability, &c.Failed, &c.Error, &c.DurationMS); err != nil {
			return nil, err
		}
		r.Calls = append(r.Calls, c)
	}
	return r, rows.Err()
}

// ListRuns returns the most recent runs first, without their calls or
// scenario text.
func (h *HistoryStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.DB.QueryContext(ctx, `
		SELECT id, task, state, pc, steps, error_kind, error, value, memory, '', started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*RunRecord, error) {
	var r RunRecord
	var errorKind, errMsg, value, memory, scenario, started, finished sql.NullString
	if err := s.Scan(&r.ID, &r.Task, &r.State, &r.PC, &r.Steps, &errorKind, &errMsg,
		&value, &memory, &scenario, &started, &finished); err != nil {
		return nil, err
	}
	r.ErrorKind = errorKind.String
	r.Error = errMsg.String
	r.Value = value.String
	r.Memory = memory.String
	r.Scenario = scenario.String
	r.StartedAt, _ = time.Parse(timeLayout, started.String)
	r.FinishedAt, _ = time.Parse(timeLayout, finished.String)
	return &r, nil
}

// Enqueue adds a scenario to the queue and returns its ID.
func (h *HistoryStore) Enqueue(ctx context.Context, task, scenario string) (int64, error) {
	res, err := h.DB.ExecContext(ctx,
		`INSERT INTO queue (task, scenario, status, enqueued_at) VALUES (?, ?, ?, ?)`,
		task, scenario, StatusPending, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue scenario: %w", err)
	}
	return res.LastInsertId()
}

// PendingScenarios returns queued scenarios not yet claimed, oldest first.
func (h *HistoryStore) PendingScenarios(ctx context.Context, limit int) ([]QueuedScenario, error) {
	if limit <= 0 {
		limit = 100
	}
	return h.queryQueue(ctx, `WHERE status = ? ORDER BY id LIMIT ?`, StatusPending, limit)
}

// ListQueue returns every queue entry, newest first.
func (h *HistoryStore) ListQueue(ctx context.Context, limit int) ([]QueuedScenario, error) {
	if limit <= 0 {
		limit = 100
	}
	return h.queryQueue(ctx, `ORDER BY id DESC LIMIT ?`, limit)
}

func (h *HistoryStore) queryQueue(ctx context.Context, clause string, args ...any) ([]QueuedScenario, error) {
	rows, err := h.DB.QueryContext(ctx,
		`SELECT id, task, scenario, status, run_id, state, enqueued_at FROM queue `+clause, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueuedScenario
	for rows.Next() {
		var q QueuedScenario
		var runID, state, enqueued sql.NullString
		if err := rows.Scan(&q.ID, &q.Task, &q.Scenario, &q.Status, &runID, &state, &enqueued); err != nil {
			return nil, err
		}
		q.RunID = runID.String
		q.State = state.String
		q.EnqueuedAt, _ = time.Parse(timeLayout, enqueued.String)
		out = append(out, q)
	}
	return out, rows.Err()
}

// Claim moves a pending entry to running. It reports false when another
// worker got there first.
func (h *HistoryStore) Claim(ctx context.Context, id int64) (bool, error) {
	res, err := h.DB.ExecContext(ctx,
		`UPDATE queue SET status = ? WHERE id = ? AND status = ?`, StatusRunning, id, StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkDone records the run that processed a queue entry.
func (h *HistoryStore) MarkDone(ctx context.Context, id int64, runID, state string) error {
	_, err := h.DB.ExecContext(ctx,
		`UPDATE queue SET status = ?, run_id = ?, state = ? WHERE id = ?`, StatusDone, runID, state, id)
	return err
}

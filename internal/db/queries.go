package db

import (
	"fmt"
)

// RunEvent represents a row in the run_events table.
type RunEvent struct {
	ID        int
	RunID     string
	Event     string
	Stage     string
	Detail    string
	Timestamp string
}

// FixAttemptRow represents a row in the fix_attempts table.
type FixAttemptRow struct {
	ID         int
	RunID      string
	Ordinal    int
	Failure    string
	Success    bool
	CommitHash string
	Summary    string
	Timestamp  string
}

// Totals holds the aggregate counters surfaced by `medic history`.
type Totals struct {
	Runs           int
	SuccessfulRuns int
	FailedRuns     int
	FixAttempts    int
	SuccessfulFix  int
}

// LogRunEvent inserts a run event.
func (d *DB) LogRunEvent(runID string, event string, stage string, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO run_events (run_id, event, stage, detail) VALUES (?, ?, ?, ?)`,
		runID, event, stage, detail,
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

// LogFixAttempt inserts a fix attempt record.
func (d *DB) LogFixAttempt(runID string, ordinal int, failure string, success bool, commitHash string, summary string) error {
	_, err := d.conn.Exec(
		`INSERT INTO fix_attempts (run_id, ordinal, failure, success, commit_hash, summary) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, ordinal, failure, success, commitHash, summary,
	)
	if err != nil {
		return fmt.Errorf("log fix attempt: %w", err)
	}
	return nil
}

// LogCommandRun inserts a command run record.
func (d *DB) LogCommandRun(runID string, stage string, exitCode int, durationMs int, timedOut bool) error {
	_, err := d.conn.Exec(
		`INSERT INTO command_runs (run_id, stage, exit_code, duration_ms, timed_out) VALUES (?, ?, ?, ?, ?)`,
		runID, stage, exitCode, durationMs, timedOut,
	)
	if err != nil {
		return fmt.Errorf("log command run: %w", err)
	}
	return nil
}

// GetRunHistory returns all events for a run, oldest first.
func (d *DB) GetRunHistory(runID string) ([]RunEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, event, COALESCE(stage, ''), COALESCE(detail, ''), timestamp
		 FROM run_events WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		if err := rows.Scan(&e.ID, &e.RunID, &e.Event, &e.Stage, &e.Detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetFixAttempts returns all fix attempts for a run, ordered by ordinal.
func (d *DB) GetFixAttempts(runID string) ([]FixAttemptRow, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, ordinal, failure, success, COALESCE(commit_hash, ''), COALESCE(summary, ''), timestamp
		 FROM fix_attempts WHERE run_id = ? ORDER BY ordinal ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query fix attempts: %w", err)
	}
	defer rows.Close()

	var attempts []FixAttemptRow
	for rows.Next() {
		var a FixAttemptRow
		if err := rows.Scan(&a.ID, &a.RunID, &a.Ordinal, &a.Failure, &a.Success, &a.CommitHash, &a.Summary, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan fix attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// GetTotals computes aggregate counters across all recorded runs.
func (d *DB) GetTotals() (*Totals, error) {
	t := &Totals{}

	err := d.conn.QueryRow(
		`SELECT COUNT(DISTINCT run_id) FROM run_events`).Scan(&t.Runs)
	if err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	err = d.conn.QueryRow(
		`SELECT COUNT(DISTINCT run_id) FROM run_events WHERE event = 'complete'`).Scan(&t.SuccessfulRuns)
	if err != nil {
		return nil, fmt.Errorf("count successful runs: %w", err)
	}
	err = d.conn.QueryRow(
		`SELECT COUNT(DISTINCT run_id) FROM run_events WHERE event = 'failed'`).Scan(&t.FailedRuns)
	if err != nil {
		return nil, fmt.Errorf("count failed runs: %w", err)
	}
	err = d.conn.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(success), 0) FROM fix_attempts`).Scan(&t.FixAttempts, &t.SuccessfulFix)
	if err != nil {
		return nil, fmt.Errorf("count fix attempts: %w", err)
	}
	return t, nil
}

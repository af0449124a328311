package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Journal persists deploy runs and their per-step outcomes in SQLite.
type Journal struct {
	db *sql.DB
}

// New opens (or creates) the journal database at dbPath.
func New(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}

	if err := j.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) initSchema() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			app TEXT NOT NULL,
			branch TEXT NOT NULL,
			ref TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			completed_at TEXT,
			duration_seconds REAL,
			commit_hash TEXT,
			error_message TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	_, err = j.db.Exec(`
		CREATE TABLE IF NOT EXISTS steps (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES runs(id),
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			exit_code INTEGER NOT NULL,
			duration_seconds REAL NOT NULL,
			output TEXT,
			started_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create steps table: %w", err)
	}

	_, err = j.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_runs_app_started
		ON runs(app, started_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	_, err = j.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_steps_run
		ON steps(run_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// BeginRun opens a run in the running state and returns its ID.
// Called before the first external action so a crash mid-deploy still
// leaves an observable record.
func (j *Journal) BeginRun(ctx context.Context, app, branch, ref, commitHash string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	var commit *string
	if commitHash != "" {
		commit = &commitHash
	}

	result, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (app, branch, ref, status, started_at, commit_hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`, app, branch, ref, StatusRunning, now, commit)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return id, nil
}

// RecordStep records the outcome of a single external action within a run.
func (j *Journal) RecordStep(ctx context.Context, runID int64, name, status string, exitCode int, duration time.Duration, output string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	var out *string
	if output != "" {
		out = &output
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO steps (run_id, name, status, exit_code, duration_seconds, output, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, name, status, exitCode, duration.Seconds(), out, now)
	if err != nil {
		return fmt.Errorf("failed to insert step: %w", err)
	}

	return nil
}

// FinishRun closes a run with a terminal status.
func (j *Journal) FinishRun(ctx context.Context, runID int64, status string, duration time.Duration, errorMessage string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	var errMsg *string
	if errorMessage != "" {
		errMsg = &errorMessage
	}

	seconds := duration.Seconds()
	_, err := j.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, completed_at = ?, duration_seconds = ?, error_message = ?
		WHERE id = ?
	`, status, now, seconds, errMsg, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	return nil
}

// RecordRejected records a delivery that was turned away without running,
// e.g. because another deploy held the app lock.
func (j *Journal) RecordRejected(ctx context.Context, app, branch, ref, reason string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (app, branch, ref, status, started_at, completed_at, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, app, branch, ref, StatusRejected, now, now, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to insert rejected run: %w", err)
	}

	return 0, nil
}

// GetLatestRun returns the most recent run for an app, or nil if none exist.
func (j *Journal) GetLatestRun(ctx context.Context, app string) (*RunRecord, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT id, app, branch, ref, status, started_at, completed_at,
		       duration_seconds, commit_hash, error_message
		FROM runs
		WHERE app = ?
		ORDER BY id DESC
		LIMIT 1
	`, app)

	record, err := scanRunRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}

	return record, nil
}

// GetRunHistory returns the most recent runs for an app, newest first.
func (j *Journal) GetRunHistory(ctx context.Context, app string, limit int) ([]RunRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, app, branch, ref, status, started_at, completed_at,
		       duration_seconds, commit_hash, error_message
		FROM runs
		WHERE app = ?
		ORDER BY id DESC
		LIMIT ?
	`, app, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		record, err := scanRunRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// GetRunSteps returns the recorded steps of a run in execution order.
func (j *Journal) GetRunSteps(ctx context.Context, runID int64) ([]StepRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, run_id, name, status, exit_code, duration_seconds, output
		FROM steps
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run steps: %w", err)
	}
	defer rows.Close()

	var records []StepRecord
	for rows.Next() {
		var record StepRecord
		var output sql.NullString
		if err := rows.Scan(&record.ID, &record.RunID, &record.Name, &record.Status,
			&record.ExitCode, &record.DurationSeconds, &output); err != nil {
			return nil, fmt.Errorf("failed to scan step record: %w", err)
		}
		if output.Valid {
			record.Output = &output.String
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRunRecord(s scanner) (*RunRecord, error) {
	var record RunRecord
	var startedAtStr string
	var completedAtStr sql.NullString

	err := s.Scan(
		&record.ID,
		&record.App,
		&record.Branch,
		&record.Ref,
		&record.Status,
		&startedAtStr,
		&completedAtStr,
		&record.DurationSeconds,
		&record.CommitHash,
		&record.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}

	startedAt, err := time.Parse(time.RFC3339, startedAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at timestamp: %w", err)
	}
	record.StartedAt = startedAt

	if completedAtStr.Valid {
		completedAt, err := time.Parse(time.RFC3339, completedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at timestamp: %w", err)
		}
		record.CompletedAt = &completedAt
	}

	return &record, nil
}

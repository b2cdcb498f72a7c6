package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bkyoung/change-attribution/internal/store"
	_ "github.com/mattn/go-sqlite3"
)

// Store implements the store.Store interface using SQLite.
type Store struct {
	db *sql.DB
}

// NewStore creates a new SQLite store at the given path.
// Use ":memory:" for in-memory database (useful for testing).
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}

	if err := s.createSchema(); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return s, nil
}

// createSchema creates all tables and indexes if they don't exist.
func (s *Store) createSchema() error {
	schema := `
	-- Stores metadata about each pipeline stage run
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		stage TEXT NOT NULL,
		project TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		input_count INTEGER NOT NULL DEFAULT 0,
		output_count INTEGER NOT NULL DEFAULT 0,
		output_path TEXT NOT NULL DEFAULT ''
	);

	-- Per-analysis outcomes recorded by the attribute stage
	CREATE TABLE IF NOT EXISTS attributions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		issue_key TEXT NOT NULL,
		affected_version TEXT NOT NULL,
		resolved_sha TEXT NOT NULL DEFAULT '',
		fixing_sha TEXT NOT NULL DEFAULT '',
		matched_lines INTEGER NOT NULL DEFAULT 0,
		unidentified_lines INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
	);

	-- Indexes for performance
	CREATE INDEX IF NOT EXISTS idx_attributions_run ON attributions(run_id);
	CREATE INDEX IF NOT EXISTS idx_attributions_issue ON attributions(issue_key);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateRun stores a new stage run. FinishedAt stays NULL until FinishRun.
func (s *Store) CreateRun(ctx context.Context, run store.Run) error {
	query := `
		INSERT INTO runs (run_id, stage, project, started_at, input_count)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.RunID,
		run.Stage,
		run.Project,
		run.StartedAt.Unix(),
		run.InputCount,
	)

	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

// FinishRun marks a run complete and records what it produced.
func (s *Store) FinishRun(ctx context.Context, runID string, finishedAt time.Time, outputCount int, outputPath string) error {
	query := `UPDATE runs SET finished_at = ?, output_count = ?, output_path = ? WHERE run_id = ?`

	result, err := s.db.ExecContext(ctx, query, finishedAt.Unix(), outputCount, outputPath, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}

	return nil
}

// ListRuns retrieves the most recent runs, limited by the given count.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	query := `
		SELECT run_id, stage, project, started_at, finished_at, input_count, output_count, output_path
		FROM runs
		ORDER BY started_at DESC, run_id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		var run store.Run
		var startedAt int64
		var finishedAt sql.NullInt64

		if err := rows.Scan(
			&run.RunID,
			&run.Stage,
			&run.Project,
			&startedAt,
			&finishedAt,
			&run.InputCount,
			&run.OutputCount,
			&run.OutputPath,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.StartedAt = time.Unix(startedAt, 0)
		if finishedAt.Valid {
			run.FinishedAt = time.Unix(finishedAt.Int64, 0)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// SaveAttributions stores the records in a single transaction.
func (s *Store) SaveAttributions(ctx context.Context, records []store.AttributionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attributions (run_id, issue_key, affected_version, resolved_sha, fixing_sha, matched_lines, unidentified_lines, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, record := range records {
		if _, err := stmt.ExecContext(ctx,
			record.RunID,
			record.IssueKey,
			record.AffectedVersion,
			record.ResolvedSHA,
			record.FixingSHA,
			record.MatchedLines,
			record.UnidentifiedLines,
			record.Error,
		); err != nil {
			return fmt.Errorf("failed to insert attribution: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ListAttributions retrieves all attribution records for a given run.
func (s *Store) ListAttributions(ctx context.Context, runID string) ([]store.AttributionRecord, error) {
	query := `
		SELECT id, run_id, issue_key, affected_version, resolved_sha, fixing_sha, matched_lines, unidentified_lines, error
		FROM attributions
		WHERE run_id = ?
		ORDER BY issue_key ASC, affected_version ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attributions: %w", err)
	}
	defer rows.Close()

	var records []store.AttributionRecord
	for rows.Next() {
		var record store.AttributionRecord

		if err := rows.Scan(
			&record.ID,
			&record.RunID,
			&record.IssueKey,
			&record.AffectedVersion,
			&record.ResolvedSHA,
			&record.FixingSHA,
			&record.MatchedLines,
			&record.UnidentifiedLines,
			&record.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attribution: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attributions: %w", err)
	}

	return records, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

package models

import (
	"database/sql"
	"fmt"
	"time"
)

type Run struct {
	ID             string    `json:"id" db:"id"`
	StartedAt      time.Time `json:"started_at" db:"started_at"`
	FinishedAt     time.Time `json:"finished_at" db:"finished_at"`
	Cancelled      bool      `json:"cancelled" db:"cancelled"`
	FinishedCount  int       `json:"finished" db:"finished_count"`
	FailedCount    int       `json:"failed" db:"failed_count"`
	SkippedCount   int       `json:"skipped" db:"skipped_count"`
	CancelledCount int       `json:"cancelled_tasks" db:"cancelled_count"`
}

type TaskResult struct {
	ID                int64   `json:"id" db:"id"`
	RunID             string  `json:"run_id" db:"run_id"`
	Series            string  `json:"series" db:"series"`
	Episode           int     `json:"episode" db:"episode"`
	Filename          *string `json:"filename,omitempty" db:"filename"`
	Path              *string `json:"path,omitempty" db:"path"`
	Outcome           string  `json:"outcome" db:"outcome"`
	Reason            *string `json:"reason,omitempty" db:"reason"`
	Error             *string `json:"error,omitempty" db:"error"`
	DownloadSeconds   float64 `json:"download_seconds" db:"download_seconds"`
	ConversionSeconds float64 `json:"conversion_seconds" db:"conversion_seconds"`
}

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create stores a run and its task results in one transaction.
func (r *RunRepository) Create(run *Run, results []TaskResult) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
        INSERT INTO runs (id, started_at, finished_at, cancelled, finished_count, failed_count, skipped_count, cancelled_count)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `, run.ID, run.StartedAt, run.FinishedAt, run.Cancelled,
		run.FinishedCount, run.FailedCount, run.SkippedCount, run.CancelledCount)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.Prepare(`
        INSERT INTO task_results (run_id, series, episode, filename, path, outcome, reason, error, download_seconds, conversion_seconds)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range results {
		res := &results[i]
		res.RunID = run.ID
		result, err := stmt.Exec(res.RunID, res.Series, res.Episode, res.Filename, res.Path,
			res.Outcome, res.Reason, res.Error, res.DownloadSeconds, res.ConversionSeconds)
		if err != nil {
			return fmt.Errorf("insert result for %s: %w", res.Series, err)
		}
		res.ID, _ = result.LastInsertId()
	}
	return tx.Commit()
}

func (r *RunRepository) GetByID(id string) (*Run, error) {
	query := `
        SELECT id, started_at, finished_at, cancelled, finished_count, failed_count, skipped_count, cancelled_count
        FROM runs WHERE id = ?
    `
	run := &Run{}
	err := r.db.QueryRow(query, id).Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Cancelled,
		&run.FinishedCount, &run.FailedCount, &run.SkippedCount, &run.CancelledCount)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns the most recent runs first.
func (r *RunRepository) List(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
        SELECT id, started_at, finished_at, cancelled, finished_count, failed_count, skipped_count, cancelled_count
        FROM runs ORDER BY started_at DESC LIMIT ?
    `
	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Cancelled,
			&run.FinishedCount, &run.FailedCount, &run.SkippedCount, &run.CancelledCount); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *RunRepository) Results(runID string) ([]TaskResult, error) {
	query := `
        SELECT id, run_id, series, episode, filename, path, outcome, reason, error, download_seconds, conversion_seconds
        FROM task_results WHERE run_id = ? ORDER BY series
    `
	return r.queryResults(query, runID)
}

// SeriesHistory returns the latest results for one series across runs.
func (r *RunRepository) SeriesHistory(series string, limit int) ([]TaskResult, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
        SELECT id, run_id, series, episode, filename, path, outcome, reason, error, download_seconds, conversion_seconds
        FROM task_results WHERE series = ? ORDER BY id DESC LIMIT ?
    `
	return r.queryResults(query, series, limit)
}

func (r *RunRepository) queryResults(query string, args ...interface{}) ([]TaskResult, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []TaskResult
	for rows.Next() {
		var res TaskResult
		if err := rows.Scan(&res.ID, &res.RunID, &res.Series, &res.Episode, &res.Filename, &res.Path,
			&res.Outcome, &res.Reason, &res.Error, &res.DownloadSeconds, &res.ConversionSeconds); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// Prune deletes runs that started before cutoff, with their results.
func (r *RunRepository) Prune(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM runs WHERE started_at < ?", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

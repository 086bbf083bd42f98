package storage

import (
	"context"
	"fmt"
	"time"
)

// ReplayRun represents a single recording-replay operation's outcome. Rows
// start as "running" and are finalized to "success" or "error"; a row stuck
// at "running" means the replayer died mid-run.
type ReplayRun struct {
	ID               int64     `json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	Status           string    `json:"status"`
	FilesTotal       int       `json:"files_total"`
	FilesReplayed    int       `json:"files_replayed"`
	FilesSkipped     int       `json:"files_skipped"`
	FilesErrored     int       `json:"files_errored"`
	SamplesFed       int       `json:"samples_fed"`
	RepsRecorded     int       `json:"reps_recorded"`
	SessionsInserted int       `json:"sessions_inserted"`
	DurationMs       *int64    `json:"duration_ms,omitempty"`
	ErrorMessage     *string   `json:"error_message,omitempty"`
}

// InsertReplayRun creates a new replay run entry and returns its ID.
func (db *DB) InsertReplayRun(ctx context.Context, run ReplayRun) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO replay_runs (status, files_total, files_replayed, files_skipped, files_errored,
		 samples_fed, reps_recorded, sessions_inserted, duration_ms, error_message)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 RETURNING id`,
		run.Status, run.FilesTotal, run.FilesReplayed, run.FilesSkipped, run.FilesErrored,
		run.SamplesFed, run.RepsRecorded, run.SessionsInserted, run.DurationMs, run.ErrorMessage,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting replay run: %w", err)
	}
	return id, nil
}

// UpdateReplayRun finalizes a replay run entry with its results.
func (db *DB) UpdateReplayRun(ctx context.Context, id int64, run ReplayRun) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE replay_runs SET
		 status = $2, files_total = $3, files_replayed = $4, files_skipped = $5, files_errored = $6,
		 samples_fed = $7, reps_recorded = $8, sessions_inserted = $9, duration_ms = $10, error_message = $11
		 WHERE id = $1`,
		id, run.Status, run.FilesTotal, run.FilesReplayed, run.FilesSkipped, run.FilesErrored,
		run.SamplesFed, run.RepsRecorded, run.SessionsInserted, run.DurationMs, run.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("updating replay run %d: %w", id, err)
	}
	return nil
}

// QueryReplayRuns returns the most recent replay runs, newest first.
func (db *DB) QueryReplayRuns(ctx context.Context, limit int) ([]ReplayRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT id, created_at, status, files_total, files_replayed, files_skipped, files_errored,
		 samples_fed, reps_recorded, sessions_inserted, duration_ms, error_message
		 FROM replay_runs
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("querying replay runs: %w", err)
	}
	defer rows.Close()

	var result []ReplayRun
	for rows.Next() {
		var run ReplayRun
		if err := rows.Scan(&run.ID, &run.CreatedAt, &run.Status, &run.FilesTotal, &run.FilesReplayed,
			&run.FilesSkipped, &run.FilesErrored, &run.SamplesFed, &run.RepsRecorded,
			&run.SessionsInserted, &run.DurationMs, &run.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scanning replay run: %w", err)
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

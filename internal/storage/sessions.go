package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/claude/flexion/internal/models"
)

const sessionColumns = `id, user_id, exercise, source, phase, started_at, ended_at, rep_count,
	 baseline_rom, push_target, minimum_threshold, user_best, best_extremum,
	 consistency, completion_rate, push_rate, rom_span, duration_sec`

// InsertSession creates a session row at session start. Returns true if
// inserted, false if the ID already exists.
func (db *DB) InsertSession(ctx context.Context, row models.SessionRow) (bool, error) {
	tag, err := db.Pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, exercise, source, phase, started_at, rep_count)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT DO NOTHING`,
		row.ID, row.UserID, row.Exercise, row.Source, row.Phase, row.StartedAt, row.RepCount)
	if err != nil {
		return false, fmt.Errorf("inserting session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateSessionProgress refreshes the live columns of a session row. The
// target pointer is nil while the session is calibrating (or was just
// reset), and then the target columns are nulled too.
func (db *DB) UpdateSessionProgress(ctx context.Context, id uuid.UUID, phase models.Phase, repCount int, t *models.TargetState) error {
	var err error
	if t == nil {
		_, err = db.Pool.Exec(ctx,
			`UPDATE sessions SET phase = $2, rep_count = $3,
			 baseline_rom = NULL, push_target = NULL, minimum_threshold = NULL, user_best = NULL
			 WHERE id = $1`,
			id, phase, repCount)
	} else {
		_, err = db.Pool.Exec(ctx,
			`UPDATE sessions SET phase = $2, rep_count = $3,
			 baseline_rom = $4, push_target = $5, minimum_threshold = $6, user_best = $7
			 WHERE id = $1`,
			id, phase, repCount, t.BaselineROM, t.PushTarget, t.MinimumThreshold, t.UserBest)
	}
	if err != nil {
		return fmt.Errorf("updating session progress: %w", err)
	}
	return nil
}

// UpdateSessionExercise records a mid-session exercise switch.
func (db *DB) UpdateSessionExercise(ctx context.Context, id uuid.UUID, exercise string) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE sessions SET exercise = $2 WHERE id = $1`, id, exercise)
	if err != nil {
		return fmt.Errorf("updating session exercise: %w", err)
	}
	return nil
}

// FinishSession stamps the end time and summary aggregates on a session.
func (db *DB) FinishSession(ctx context.Context, id uuid.UUID, endedAt time.Time, sum models.SessionSummary) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE sessions SET ended_at = $2, rep_count = $3, best_extremum = $4,
		 consistency = $5, completion_rate = $6, push_rate = $7, rom_span = $8, duration_sec = $9
		 WHERE id = $1`,
		id, endedAt, sum.RepCount, nullIfZero(sum.BestExtremum),
		sum.Consistency, sum.CompletionRate, sum.PushRate, sum.ROMSpan, sum.DurationSec)
	if err != nil {
		return fmt.Errorf("finishing session: %w", err)
	}
	return nil
}

// GetSession retrieves a single session by ID.
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*models.SessionRow, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)

	var s models.SessionRow
	if err := scanSession(row, &s); err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return &s, nil
}

// QuerySessions retrieves a user's sessions in a time range, newest first.
func (db *DB) QuerySessions(ctx context.Context, userID int, start, end time.Time) ([]models.SessionRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE user_id = $1 AND started_at >= $2 AND started_at < $3
		 ORDER BY started_at DESC`,
		userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	return scanSessionRows(rows)
}

// LatestSession returns a user's most recently started session, or nil when
// none exist.
func (db *DB) LatestSession(ctx context.Context, userID int) (*models.SessionRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE user_id = $1
		 ORDER BY started_at DESC
		 LIMIT 1`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying latest session: %w", err)
	}
	defer rows.Close()

	result, err := scanSessionRows(rows)
	if err != nil || len(result) == 0 {
		return nil, err
	}
	return &result[0], nil
}

func scanSession(row interface{ Scan(dest ...any) error }, s *models.SessionRow) error {
	return row.Scan(&s.ID, &s.UserID, &s.Exercise, &s.Source, &s.Phase, &s.StartedAt, &s.EndedAt,
		&s.RepCount, &s.BaselineROM, &s.PushTarget, &s.MinimumThreshold, &s.UserBest,
		&s.BestExtremum, &s.Consistency, &s.CompletionRate, &s.PushRate, &s.ROMSpan, &s.DurationSec)
}

func scanSessionRows(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]models.SessionRow, error) {
	var result []models.SessionRow
	for rows.Next() {
		var s models.SessionRow
		if err := scanSession(rows, &s); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// nullIfZero maps a zero aggregate to NULL so empty sessions do not record
// a fake zero-degree extremum.
func nullIfZero(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}

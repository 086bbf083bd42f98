package storage

import (
	"context"
	"fmt"
	"time"
)

// UserStats holds aggregate statistics about a user's stored sessions.
type UserStats struct {
	TotalSessions    int64          `json:"total_sessions"`
	TotalReps        int64          `json:"total_reps"`
	TotalTrainingSec float64        `json:"total_training_sec"`
	EarliestSession  *time.Time     `json:"earliest_session"`
	LatestSession    *time.Time     `json:"latest_session"`
	Exercises        []ExerciseStat `json:"exercises"`
}

// ExerciseStat holds summary stats for a single exercise kind. Extrema are
// reported as raw min/max angles; which end is "best" depends on the
// exercise's polarity, so that call is left to the reader.
type ExerciseStat struct {
	Kind          string   `json:"kind"`
	Sessions      int64    `json:"sessions"`
	Reps          int64    `json:"reps"`
	MinExtremum   *float64 `json:"min_extremum,omitempty"`
	MaxExtremum   *float64 `json:"max_extremum,omitempty"`
	AvgCompletion *float64 `json:"avg_completion,omitempty"`
}

// GetUserStats returns aggregate statistics for a user's training history.
func (db *DB) GetUserStats(ctx context.Context, userID int) (*UserStats, error) {
	stats := &UserStats{}

	// Total sessions
	err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sessions WHERE user_id = $1`, userID,
	).Scan(&stats.TotalSessions)
	if err != nil {
		return nil, fmt.Errorf("counting sessions: %w", err)
	}

	// Total reps
	err = db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reps WHERE user_id = $1`, userID,
	).Scan(&stats.TotalReps)
	if err != nil {
		return nil, fmt.Errorf("counting reps: %w", err)
	}

	// Total training time across finished sessions
	err = db.Pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(duration_sec), 0) FROM sessions WHERE user_id = $1`, userID,
	).Scan(&stats.TotalTrainingSec)
	if err != nil {
		return nil, fmt.Errorf("summing training time: %w", err)
	}

	// Date range
	err = db.Pool.QueryRow(ctx,
		`SELECT MIN(started_at), MAX(started_at) FROM sessions WHERE user_id = $1`, userID,
	).Scan(&stats.EarliestSession, &stats.LatestSession)
	if err != nil {
		return nil, fmt.Errorf("querying date range: %w", err)
	}

	// Per-exercise breakdown
	rows, err := db.Pool.Query(ctx,
		`SELECT exercise, COUNT(*), COALESCE(SUM(rep_count), 0),
		        MIN(best_extremum), MAX(best_extremum), AVG(completion_rate)
		 FROM sessions
		 WHERE user_id = $1
		 GROUP BY exercise
		 ORDER BY COUNT(*) DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying exercise breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s ExerciseStat
		if err := rows.Scan(&s.Kind, &s.Sessions, &s.Reps, &s.MinExtremum, &s.MaxExtremum, &s.AvgCompletion); err != nil {
			return nil, fmt.Errorf("scanning exercise stat: %w", err)
		}
		stats.Exercises = append(stats.Exercises, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

package storage

import (
	"context"
	"fmt"
	"time"
)

// ProgressPeriod holds aggregated training stats for one time period.
// Extremum bounds are raw min/max angles; the harder end depends on the
// exercise's polarity.
type ProgressPeriod struct {
	Period            string   `json:"period"`
	Sessions          int      `json:"sessions"`
	Reps              int      `json:"reps"`
	AvgConsistency    *float64 `json:"avg_consistency,omitempty"`
	AvgCompletionRate *float64 `json:"avg_completion_rate,omitempty"`
	AvgPushTarget     *float64 `json:"avg_push_target,omitempty"`
	MinExtremum       *float64 `json:"min_extremum,omitempty"`
	MaxExtremum       *float64 `json:"max_extremum,omitempty"`
}

// GetProgressSummary returns per-period training aggregates for one exercise,
// newest period first. Only finished sessions count.
func (db *DB) GetProgressSummary(ctx context.Context, userID int, exercise string, start, end time.Time, bucket string) ([]ProgressPeriod, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT date_trunc($1, started_at)::date AS period,
		        COUNT(*)::int,
		        COALESCE(SUM(rep_count), 0)::int,
		        AVG(consistency),
		        AVG(completion_rate),
		        AVG(push_target),
		        MIN(best_extremum),
		        MAX(best_extremum)
		 FROM sessions
		 WHERE user_id = $2 AND exercise = $3 AND ended_at IS NOT NULL
		   AND started_at >= $4 AND started_at < $5
		 GROUP BY period
		 ORDER BY period DESC`,
		truncInterval(bucket), userID, exercise, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying progress summary: %w", err)
	}
	defer rows.Close()

	var result []ProgressPeriod
	for rows.Next() {
		var periodTime time.Time
		var p ProgressPeriod
		if err := rows.Scan(&periodTime, &p.Sessions, &p.Reps, &p.AvgConsistency,
			&p.AvgCompletionRate, &p.AvgPushTarget, &p.MinExtremum, &p.MaxExtremum); err != nil {
			return nil, fmt.Errorf("scanning progress period: %w", err)
		}
		p.Period = periodTime.Format("2006-01-02")
		result = append(result, p)
	}
	return result, rows.Err()
}

// truncInterval converts bucket strings like "1 month" to the interval name
// that date_trunc expects (e.g. "month", "week").
func truncInterval(bucket string) string {
	switch bucket {
	case "1 day":
		return "day"
	case "1 week":
		return "week"
	case "1 month":
		return "month"
	default:
		return "week"
	}
}

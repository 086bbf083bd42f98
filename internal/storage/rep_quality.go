package storage

import (
	"context"
	"fmt"
	"time"
)

// QualityBand holds the count and percentage of reps in one quality band.
type QualityBand struct {
	Band string  `json:"band"`
	Reps int     `json:"reps"`
	Pct  float64 `json:"pct"`
}

// ExerciseQuality holds rep-level quality stats for a single exercise kind.
// Extrema are raw min/max angles; the harder end depends on polarity.
type ExerciseQuality struct {
	Exercise    string   `json:"exercise"`
	Sessions    int      `json:"sessions"`
	Reps        int      `json:"reps"`
	PushMetPct  float64  `json:"push_met_pct"`
	MinExtremum *float64 `json:"min_extremum,omitempty"`
	MaxExtremum *float64 `json:"max_extremum,omitempty"`
}

// RepQualityResult holds the complete rep quality analysis for a time range.
type RepQualityResult struct {
	Bands       []QualityBand     `json:"bands"`
	TotalReps   int               `json:"total_reps"`
	MissRatePct float64           `json:"miss_rate_pct"`
	PushRatePct float64           `json:"push_rate_pct"`
	Exercises   []ExerciseQuality `json:"exercises"`
}

// GetRepQuality returns the distribution of reps across quality bands plus a
// per-exercise breakdown. Bands grade each rep against the targets that were
// active when it completed: below_minimum missed the floor, at_minimum
// cleared it, at_push reached the push target, new_best set a session best.
// An empty exercise scopes the band query to all exercises.
func (db *DB) GetRepQuality(ctx context.Context, userID int, exercise string, start, end time.Time) (*RepQualityResult, error) {
	result := &RepQualityResult{}

	bandRows, err := db.Pool.Query(ctx,
		`SELECT band, COUNT(*)::int AS reps FROM (
			SELECT
				CASE
					WHEN NOT r.minimum_threshold_met THEN 'below_minimum'
					WHEN NOT r.push_target_met THEN 'at_minimum'
					WHEN NOT r.new_best THEN 'at_push'
					ELSE 'new_best'
				END AS band
			FROM reps r
			JOIN sessions s ON s.id = r.session_id
			WHERE r.user_id = $1
			  AND r.completed_at >= $2 AND r.completed_at < $3
			  AND ($4 = '' OR s.exercise = $4)
		) sub
		GROUP BY band
		ORDER BY CASE band
			WHEN 'below_minimum' THEN 1
			WHEN 'at_minimum' THEN 2
			WHEN 'at_push' THEN 3
			WHEN 'new_best' THEN 4
		END`,
		userID, start, end, exercise)
	if err != nil {
		return nil, fmt.Errorf("querying quality bands: %w", err)
	}
	defer bandRows.Close()

	var totalReps, missedReps, pushReps int
	for bandRows.Next() {
		var b QualityBand
		if err := bandRows.Scan(&b.Band, &b.Reps); err != nil {
			return nil, fmt.Errorf("scanning quality band: %w", err)
		}
		totalReps += b.Reps
		if b.Band == "below_minimum" {
			missedReps += b.Reps
		}
		if b.Band == "at_push" || b.Band == "new_best" {
			pushReps += b.Reps
		}
		result.Bands = append(result.Bands, b)
	}
	if err := bandRows.Err(); err != nil {
		return nil, err
	}

	result.TotalReps = totalReps
	if totalReps > 0 {
		for i := range result.Bands {
			result.Bands[i].Pct = float64(result.Bands[i].Reps) / float64(totalReps) * 100
		}
		result.MissRatePct = float64(missedReps) / float64(totalReps) * 100
		result.PushRatePct = float64(pushReps) / float64(totalReps) * 100
	}

	exRows, err := db.Pool.Query(ctx,
		`SELECT s.exercise,
		        COUNT(DISTINCT r.session_id)::int,
		        COUNT(*)::int,
		        AVG(CASE WHEN r.push_target_met THEN 100.0 ELSE 0.0 END),
		        MIN(r.achieved_extremum),
		        MAX(r.achieved_extremum)
		 FROM reps r
		 JOIN sessions s ON s.id = r.session_id
		 WHERE r.user_id = $1
		   AND r.completed_at >= $2 AND r.completed_at < $3
		 GROUP BY s.exercise
		 ORDER BY COUNT(*) DESC`,
		userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("querying exercise quality: %w", err)
	}
	defer exRows.Close()

	for exRows.Next() {
		var e ExerciseQuality
		if err := exRows.Scan(&e.Exercise, &e.Sessions, &e.Reps, &e.PushMetPct, &e.MinExtremum, &e.MaxExtremum); err != nil {
			return nil, fmt.Errorf("scanning exercise quality: %w", err)
		}
		result.Exercises = append(result.Exercises, e)
	}
	if err := exRows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/claude/flexion/internal/models"
)

// InsertReps batch-inserts completed reps. Conflicts on (session_id,
// generation, rep_index) are skipped so replaying a recording is idempotent.
func (db *DB) InsertReps(ctx context.Context, reps []models.RepRow) (int64, error) {
	if len(reps) == 0 {
		return 0, nil
	}

	query := `INSERT INTO reps (session_id, user_id, generation, rep_index, achieved_extremum,
		minimum_threshold_met, push_target_met, new_best, duration_sec, completed_at, feedback) VALUES `
	args := make([]any, 0, len(reps)*11)
	valueStrings := make([]string, 0, len(reps))

	for i, r := range reps {
		base := i * 11
		valueStrings = append(valueStrings, fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11))
		args = append(args, r.SessionID, r.UserID, r.Generation, r.RepIndex, r.AchievedExtremum,
			r.MinimumThresholdMet, r.PushTargetMet, r.NewBest, r.DurationSec, r.CompletedAt, r.Feedback)
	}

	query += strings.Join(valueStrings, ",") + " ON CONFLICT DO NOTHING"

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting reps: %w", err)
	}
	return tag.RowsAffected(), nil
}

// QuerySessionReps retrieves every rep of a session in completion order.
// Reps from before a mid-session reset come first, under their older
// generation.
func (db *DB) QuerySessionReps(ctx context.Context, sessionID uuid.UUID) ([]models.RepRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT session_id, user_id, generation, rep_index, achieved_extremum,
		        minimum_threshold_met, push_target_met, new_best, duration_sec, completed_at, feedback
		 FROM reps
		 WHERE session_id = $1
		 ORDER BY generation, rep_index`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying session reps: %w", err)
	}
	defer rows.Close()

	var result []models.RepRow
	for rows.Next() {
		var r models.RepRow
		if err := rows.Scan(&r.SessionID, &r.UserID, &r.Generation, &r.RepIndex, &r.AchievedExtremum,
			&r.MinimumThresholdMet, &r.PushTargetMet, &r.NewBest, &r.DurationSec,
			&r.CompletedAt, &r.Feedback); err != nil {
			return nil, fmt.Errorf("scanning rep: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

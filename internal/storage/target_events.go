package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/claude/flexion/internal/models"
)

// InsertTargetEvent appends one entry to a session's target audit trail.
func (db *DB) InsertTargetEvent(ctx context.Context, ev models.TargetEventRow) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO target_events (session_id, user_id, generation, at, source, push_before, push_after, minimum_threshold, factors)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		ev.SessionID, ev.UserID, ev.Generation, ev.At, ev.Source, ev.PushBefore, ev.PushAfter,
		ev.MinimumThreshold, ev.Factors)
	if err != nil {
		return fmt.Errorf("inserting target event: %w", err)
	}
	return nil
}

// QueryTargetEvents retrieves a session's target changes in the order they
// were applied.
func (db *DB) QueryTargetEvents(ctx context.Context, sessionID uuid.UUID) ([]models.TargetEventRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT session_id, user_id, generation, at, source, push_before, push_after, minimum_threshold, factors
		 FROM target_events
		 WHERE session_id = $1
		 ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying target events: %w", err)
	}
	defer rows.Close()

	var result []models.TargetEventRow
	for rows.Next() {
		var ev models.TargetEventRow
		if err := rows.Scan(&ev.SessionID, &ev.UserID, &ev.Generation, &ev.At, &ev.Source, &ev.PushBefore,
			&ev.PushAfter, &ev.MinimumThreshold, &ev.Factors); err != nil {
			return nil, fmt.Errorf("scanning target event: %w", err)
		}
		result = append(result, ev)
	}
	return result, rows.Err()
}

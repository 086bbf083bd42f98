package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/claude/flexion/internal/models"
)

// InsertAdvisoryLog records one advisory outcome (applied, deferred, stale,
// error or annotation) for later service-health review.
func (db *DB) InsertAdvisoryLog(ctx context.Context, entry models.AdvisoryLogRow) error {
	_, err := db.Pool.Exec(ctx,
		`INSERT INTO advisory_log (session_id, user_id, generation, at, kind, status, latency_ms, detail)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.SessionID, entry.UserID, entry.Generation, entry.At, entry.Kind, entry.Status,
		entry.LatencyMS, entry.Detail)
	if err != nil {
		return fmt.Errorf("inserting advisory log: %w", err)
	}
	return nil
}

// QueryAdvisoryLog retrieves a session's advisory outcomes in order.
func (db *DB) QueryAdvisoryLog(ctx context.Context, sessionID uuid.UUID) ([]models.AdvisoryLogRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT session_id, user_id, generation, at, kind, status, latency_ms, detail
		 FROM advisory_log
		 WHERE session_id = $1
		 ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying advisory log: %w", err)
	}
	defer rows.Close()

	var result []models.AdvisoryLogRow
	for rows.Next() {
		var entry models.AdvisoryLogRow
		if err := rows.Scan(&entry.SessionID, &entry.UserID, &entry.Generation, &entry.At, &entry.Kind,
			&entry.Status, &entry.LatencyMS, &entry.Detail); err != nil {
			return nil, fmt.Errorf("scanning advisory log: %w", err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

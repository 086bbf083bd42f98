package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/claude/flexion/internal/models"
)

// SeedExercises upserts the engine's exercise catalog so clients can list
// what this deployment offers. Called once at startup; tuning constants in
// the table are display copies, the engine's values are authoritative.
func (db *DB) SeedExercises(ctx context.Context, rows []models.ExerciseRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query := `INSERT INTO exercises (kind, name, polarity, rest_angle, movement_threshold, enabled) VALUES `
	args := make([]any, 0, len(rows)*6)
	valueStrings := make([]string, 0, len(rows))

	for i, r := range rows {
		base := i * 6
		valueStrings = append(valueStrings, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args, r.Kind, r.Name, r.Polarity, r.RestAngle, r.MovementThreshold, r.Enabled)
	}

	query += strings.Join(valueStrings, ",") +
		` ON CONFLICT (kind) DO UPDATE SET
			name = EXCLUDED.name,
			polarity = EXCLUDED.polarity,
			rest_angle = EXCLUDED.rest_angle,
			movement_threshold = EXCLUDED.movement_threshold,
			enabled = EXCLUDED.enabled`

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("seeding exercises: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListExercises returns the enabled exercise catalog ordered by kind.
func (db *DB) ListExercises(ctx context.Context) ([]models.ExerciseRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT kind, name, polarity, rest_angle, movement_threshold, enabled
		 FROM exercises
		 WHERE enabled
		 ORDER BY kind`)
	if err != nil {
		return nil, fmt.Errorf("querying exercises: %w", err)
	}
	defer rows.Close()

	var result []models.ExerciseRow
	for rows.Next() {
		var e models.ExerciseRow
		if err := rows.Scan(&e.Kind, &e.Name, &e.Polarity, &e.RestAngle, &e.MovementThreshold, &e.Enabled); err != nil {
			return nil, fmt.Errorf("scanning exercise: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

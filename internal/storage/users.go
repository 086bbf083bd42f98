package storage

import (
	"context"
	"fmt"

	"github.com/claude/flexion/internal/models"
)

// GetOrCreateUser finds or creates a user by name and returns the user ID.
// Updates last_seen on each call.
func (db *DB) GetOrCreateUser(ctx context.Context, name string) (int, error) {
	var id int
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO users (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE
			SET last_seen = NOW()
		RETURNING id
	`, name).Scan(&id)
	return id, err
}

// ListUsers returns all users ordered by ID.
func (db *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT id, name, created_at, last_seen FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var result []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.CreatedAt, &u.LastSeen); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

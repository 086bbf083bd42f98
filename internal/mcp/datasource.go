package mcp

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/claude/flexion/internal/models"
	"github.com/claude/flexion/internal/storage"
)

// DataSource abstracts the data layer for MCP tools. Both *storage.DB (local)
// and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	QuerySessions(ctx context.Context, userID int, start, end time.Time) ([]models.SessionRow, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.SessionRow, error)
	LatestSession(ctx context.Context, userID int) (*models.SessionRow, error)
	QuerySessionReps(ctx context.Context, sessionID uuid.UUID) ([]models.RepRow, error)
	QueryTargetEvents(ctx context.Context, sessionID uuid.UUID) ([]models.TargetEventRow, error)
	GetProgressSummary(ctx context.Context, userID int, exercise string, start, end time.Time, bucket string) ([]storage.ProgressPeriod, error)
	GetRepQuality(ctx context.Context, userID int, exercise string, start, end time.Time) (*storage.RepQualityResult, error)
	ListExercises(ctx context.Context) ([]models.ExerciseRow, error)
	GetUserStats(ctx context.Context, userID int) (*storage.UserStats, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)

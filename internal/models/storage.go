package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User is a row in the users table.
type User struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
}

// ExerciseRow is a row in the exercises table. The engine owns the tuning
// constants; the table exists so clients can list what the deployment offers.
type ExerciseRow struct {
	Kind              string  `json:"kind"`
	Name              string  `json:"name"`
	Polarity          string  `json:"polarity"`
	RestAngle         float64 `json:"rest_angle"`
	MovementThreshold float64 `json:"movement_threshold"`
	Enabled           bool    `json:"enabled"`
}

// Session sources.
const (
	SessionSourceLive   = "live"
	SessionSourceReplay = "replay"
)

// SessionRow is a row in the sessions table. Summary columns stay NULL until
// the session finishes.
type SessionRow struct {
	ID               uuid.UUID  `json:"id"`
	UserID           int        `json:"user_id"`
	Exercise         string     `json:"exercise"`
	Source           string     `json:"source"`
	Phase            Phase      `json:"phase"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	RepCount         int        `json:"rep_count"`
	BaselineROM      *float64   `json:"baseline_rom,omitempty"`
	PushTarget       *float64   `json:"push_target,omitempty"`
	MinimumThreshold *float64   `json:"minimum_threshold,omitempty"`
	UserBest         *float64   `json:"user_best,omitempty"`
	BestExtremum     *float64   `json:"best_extremum,omitempty"`
	Consistency      *float64   `json:"consistency,omitempty"`
	CompletionRate   *float64   `json:"completion_rate,omitempty"`
	PushRate         *float64   `json:"push_rate,omitempty"`
	ROMSpan          *float64   `json:"rom_span,omitempty"`
	DurationSec      *float64   `json:"duration_sec,omitempty"`
}

// RepRow is a row ready for insertion into the reps table. Generation
// partitions rows across mid-session resets: rep indexes restart at 1 after
// a reset, so the pair (generation, rep_index) is what identifies a rep.
type RepRow struct {
	SessionID           uuid.UUID `json:"session_id"`
	UserID              int       `json:"user_id"`
	Generation          int64     `json:"generation"`
	RepIndex            int       `json:"rep_index"`
	AchievedExtremum    float64   `json:"achieved_extremum"`
	MinimumThresholdMet bool      `json:"minimum_threshold_met"`
	PushTargetMet       bool      `json:"push_target_met"`
	NewBest             bool      `json:"new_best"`
	DurationSec         float64   `json:"duration_sec"`
	CompletedAt         time.Time `json:"completed_at"`
	Feedback            string    `json:"feedback,omitempty"`
}

// TargetEventRow is a row ready for insertion into the target_events table:
// one entry per change to a session's targets, with the source that made it.
type TargetEventRow struct {
	SessionID        uuid.UUID       `json:"session_id"`
	UserID           int             `json:"user_id"`
	Generation       int64           `json:"generation"`
	At               time.Time       `json:"at"`
	Source           string          `json:"source"`
	PushBefore       *float64        `json:"push_before,omitempty"`
	PushAfter        float64         `json:"push_after"`
	MinimumThreshold float64         `json:"minimum_threshold"`
	Factors          json.RawMessage `json:"factors,omitempty"`
}

// AdvisoryLogRow is a row ready for insertion into the advisory_log table.
type AdvisoryLogRow struct {
	SessionID  uuid.UUID `json:"session_id"`
	UserID     int       `json:"user_id"`
	Generation int64     `json:"generation"`
	At         time.Time `json:"at"`
	Kind       string    `json:"kind"`
	Status     string    `json:"status"`
	LatencyMS  *int64    `json:"latency_ms,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}


package models

import (
	"time"

	"github.com/google/uuid"
)

// Phase is the lifecycle stage of a training session.
type Phase string

const (
	PhaseBaseline Phase = "baseline"
	PhaseTraining Phase = "training"
)

// RepRecord is the immutable outcome of one completed rep. Records are
// append-only: adaptation and advisory layers read them but never mutate them.
type RepRecord struct {
	Index               int           `json:"index"`
	AchievedExtremum    float64       `json:"achieved_extremum"`
	MinimumThresholdMet bool          `json:"minimum_threshold_met"`
	PushTargetMet       bool          `json:"push_target_met"`
	NewBest             bool          `json:"new_best,omitempty"`
	Duration            time.Duration `json:"-"`
	DurationSec         float64       `json:"duration_sec"`
	CompletedAt         time.Time     `json:"completed_at"`
	Feedback            string        `json:"feedback,omitempty"`
}

// TargetState holds the live difficulty targets for one session. Angles are
// joint degrees; which direction is harder depends on the exercise polarity.
type TargetState struct {
	BaselineROM      float64 `json:"baseline_rom"`
	MinimumThreshold float64 `json:"minimum_threshold"`
	PushTarget       float64 `json:"push_target"`
	UserBest         float64 `json:"user_best"`
}

// AdaptationFactors are the five heuristic scores behind one local
// adaptation decision, kept for the audit trail.
type AdaptationFactors struct {
	ROM         int `json:"rom"`
	Fatigue     int `json:"fatigue"`
	Consistency int `json:"consistency"`
	Trend       int `json:"trend"`
	Duration    int `json:"duration"`
	Total       int `json:"total"`
}

// Target change sources, in the order they may touch a target at one
// evaluation point.
const (
	TargetSourceCalibration = "calibration"
	TargetSourceLocal       = "local"
	TargetSourceMicro       = "micro"
	TargetSourceMacro       = "macro"
	TargetSourceClamp       = "clamp"
)

// Session event types emitted by the engine and relayed over SSE.
const (
	EventCalibrationRep = "calibration_rep"
	EventPhase          = "phase"
	EventRep            = "rep"
	EventTarget         = "target"
	EventAdvisory       = "advisory"
	EventAnnotation     = "annotation"
)

// Annotation kinds produced by macro advisory actions.
const (
	AnnotationRest      = "rest_suggested"
	AnnotationEncourage = "encouragement"
)

// SessionEvent is one engine-produced event. Exactly the fields for the
// event's type are set; the rest are omitted from the wire form.
type SessionEvent struct {
	Type             string             `json:"type"`
	Timestamp        time.Time          `json:"timestamp"`
	CalibrationCount int                `json:"calibration_count,omitempty"`
	Phase            Phase              `json:"phase,omitempty"`
	Rep              *RepRecord         `json:"rep,omitempty"`
	Target           *TargetState       `json:"target,omitempty"`
	Source           string             `json:"source,omitempty"`
	PushBefore       *float64           `json:"push_before,omitempty"`
	Factors          *AdaptationFactors `json:"factors,omitempty"`
	Status           string             `json:"status,omitempty"`
	LatencyMS        int64              `json:"latency_ms,omitempty"`
	Annotation       string             `json:"annotation,omitempty"`
	Message          string             `json:"message,omitempty"`
}

// SessionStatus is the live snapshot returned by the session detail endpoint.
type SessionStatus struct {
	ID             uuid.UUID    `json:"id"`
	UserID         int          `json:"user_id"`
	Exercise       string       `json:"exercise"`
	Phase          Phase        `json:"phase"`
	State          string       `json:"state"`
	Generation     uint64       `json:"generation"`
	RepCount       int          `json:"rep_count"`
	DroppedSamples int          `json:"dropped_samples,omitempty"`
	Target         *TargetState `json:"target,omitempty"`
	StartedAt      time.Time    `json:"started_at,omitempty"`
}

// SessionSummary is the read-only aggregate computed when a session ends.
type SessionSummary struct {
	RepCount       int     `json:"rep_count"`
	Consistency    float64 `json:"consistency"`
	CompletionRate float64 `json:"completion_rate"`
	PushRate       float64 `json:"push_rate"`
	ROMSpan        float64 `json:"rom_span"`
	BestExtremum   float64 `json:"best_extremum"`
	DurationSec    float64 `json:"duration_sec"`
}

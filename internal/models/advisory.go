package models

// Wire types for the two external advisory services. Both speak plain
// HTTP+JSON; both are optional, and every failure downgrades to a no-op.

// QualityRequest asks the form-quality service to score one completed rep
// from its per-frame movement signature.
type QualityRequest struct {
	UserID   int            `json:"user_id"`
	Exercise string         `json:"exercise"`
	RepIndex int            `json:"rep_index"`
	Frames   []FeatureFrame `json:"frames"`
}

// QualityResponse carries the scored rep plus an optional fine-grained
// target suggestion. SuggestedTargetAngle of zero means no suggestion.
type QualityResponse struct {
	QualityScore         float64  `json:"quality_score"`
	AchievedROM          float64  `json:"achieved_rom"`
	SuggestedTargetAngle float64  `json:"suggested_target_angle"`
	Feedback             string   `json:"feedback,omitempty"`
	Corrections          []string `json:"corrections,omitempty"`
}

// PolicyStateSize is the fixed length of the policy state vector.
const PolicyStateSize = 20

// PolicyRequest carries the session state vector for the difficulty policy.
type PolicyRequest struct {
	State []float64 `json:"state"`
}

// PolicyResponse is the policy's chosen coarse action.
type PolicyResponse struct {
	Action int `json:"action"`
}

// Coarse policy actions. Ease and Tighten move the push target by a fixed
// step; Rest and Encourage only annotate the feedback feed.
const (
	ActionEase      = 0
	ActionMaintain  = 1
	ActionTighten   = 2
	ActionRest      = 3
	ActionEncourage = 4
)

// Advisory outcome statuses as recorded in the advisory log.
const (
	AdvisoryApplied    = "applied"
	AdvisoryDeferred   = "deferred"
	AdvisoryStale      = "stale"
	AdvisoryError      = "error"
	AdvisoryNoop       = "noop"
	AdvisoryAnnotation = "annotation"
)

package models

import "time"

// AngleSample is one joint-angle measurement from the perception front end.
// Samples are ephemeral: consumed by the engine per frame, never persisted.
type AngleSample struct {
	Timestamp    time.Time `json:"timestamp"`
	Exercise     string    `json:"exercise"`
	Side         string    `json:"side,omitempty"`
	AngleDegrees float64   `json:"angle_degrees"`
}

// SampleBatch is the wire format for the samples ingest endpoint. The
// perception collaborator posts frames in capture order; the engine consumes
// them in that order.
type SampleBatch struct {
	Samples []AngleSample `json:"samples"`
}

// FeatureFrame is one per-frame feature vector collected during a rep,
// forwarded to the quality advisory as the rep's movement signature.
type FeatureFrame struct {
	ElapsedMS    int64   `json:"elapsed_ms"`
	AngleDegrees float64 `json:"angle_degrees"`
	VelocityDPS  float64 `json:"velocity_dps"`
}

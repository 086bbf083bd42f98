package engine

import (
	"math"

	"github.com/claude/flexion/internal/models"
)

// maxExtraDegrees bounds how far adaptation may push the target past the
// calibrated baseline in either direction. Every layer that writes a target
// is subordinate to this envelope.
const maxExtraDegrees = 30.0

// recomputeMinimum rederives the minimum completion threshold from the
// current push target, keeping the two in their fixed proportion. The
// minimum always lands strictly on the easy side of the push target.
func recomputeMinimum(t *models.TargetState, p Polarity) {
	t.MinimumThreshold = math.Round(t.PushTarget * p.thresholdRatio())
}

// clampTarget forces the push target back inside the baseline safety
// envelope. The envelope is symmetric around the baseline, so it caps both
// runaway tightening and runaway easing. It reports whether anything moved;
// callers recompute the minimum threshold afterwards.
func clampTarget(t *models.TargetState) bool {
	lo := t.BaselineROM - maxExtraDegrees
	hi := t.BaselineROM + maxExtraDegrees
	switch {
	case t.PushTarget < lo:
		t.PushTarget = lo
	case t.PushTarget > hi:
		t.PushTarget = hi
	default:
		return false
	}
	return true
}

// observeExtremum folds a completed rep's extremum into the personal best.
// It reports whether the best moved.
func observeExtremum(t *models.TargetState, p Polarity, extremum float64) bool {
	if p.Harder(extremum, t.UserBest) {
		t.UserBest = extremum
		return true
	}
	return false
}

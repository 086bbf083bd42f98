// Package engine implements the rep detection state machine, baseline
// calibration, and the layered difficulty adaptation that runs on top of the
// per-frame joint-angle stream.
package engine

// Polarity declares which numeric direction of a joint angle is "harder" for
// an exercise. A deeper squat lowers the knee angle; a higher lateral raise
// raises the shoulder angle. All threshold and target comparisons go through
// Polarity so the rest of the engine never branches on the exercise kind.
type Polarity int

const (
	// LowerIsHarder marks exercises where effort decreases the angle.
	LowerIsHarder Polarity = iota
	// HigherIsHarder marks exercises where effort increases the angle.
	HigherIsHarder
)

func (p Polarity) String() string {
	if p == HigherIsHarder {
		return "higher_is_harder"
	}
	return "lower_is_harder"
}

// Harder reports whether angle a is strictly harder than b.
func (p Polarity) Harder(a, b float64) bool {
	if p == LowerIsHarder {
		return a < b
	}
	return a > b
}

// HarderOrEqual reports whether angle a is at least as hard as b.
func (p Polarity) HarderOrEqual(a, b float64) bool {
	if p == LowerIsHarder {
		return a <= b
	}
	return a >= b
}

// MoreExtreme returns the harder of the two angles.
func (p Polarity) MoreExtreme(a, b float64) float64 {
	if p.Harder(a, b) {
		return a
	}
	return b
}

// EaseDelta converts a signed ease magnitude in degrees (positive = make the
// exercise easier) into an angle delta with the correct sign for p.
func (p Polarity) EaseDelta(magnitude float64) float64 {
	if p == LowerIsHarder {
		return magnitude
	}
	return -magnitude
}

// easeAmount reports how far delta points toward "easier": positive values
// mean performance drifted toward the easy side.
func (p Polarity) easeAmount(delta float64) float64 {
	if p == LowerIsHarder {
		return delta
	}
	return -delta
}

// towardHarder reports whether a frame-to-frame delta moves toward the hard
// side by at least min degrees.
func (p Polarity) towardHarder(delta, min float64) bool {
	if p == LowerIsHarder {
		return delta <= -min
	}
	return delta >= min
}

// thresholdRatio is the fixed proportion between a push target and the
// minimum completion threshold derived from it.
func (p Polarity) thresholdRatio() float64 {
	if p == LowerIsHarder {
		return 1.3
	}
	return 0.7
}

// pushOffset is the fixed offset from baseline ROM to the initial push target.
func (p Polarity) pushOffset() float64 {
	if p == LowerIsHarder {
		return -10
	}
	return 10
}

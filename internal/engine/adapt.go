package engine

import (
	"math"
	"time"

	"github.com/claude/flexion/internal/models"
)

// Adaptation cadence and window sizes. Fixed by design, not runtime-tunable.
const (
	// AdaptInterval is the number of completed training reps between
	// evaluations of the local adaptation controller.
	AdaptInterval = 3

	romWindow         = 10
	fatigueMinWindow  = 6
	consistencyWindow = 5
	trendWindow       = 10
)

// EvaluateAdaptation scores the recent rep history into the five adaptation
// factors. Pure: same extrema, baseline, and clock reading always yield the
// same factors. Positive totals mean the user is struggling and the target
// should ease; negative totals mean it can tighten.
func EvaluateAdaptation(ex Exercise, extrema []float64, baseline float64, elapsed time.Duration) models.AdaptationFactors {
	window := lastN(extrema, romWindow)
	f := models.AdaptationFactors{
		ROM:         romFactor(ex.Polarity, window, baseline),
		Fatigue:     fatigueFactor(ex, window),
		Consistency: consistencyFactor(extrema),
		Trend:       trendFactor(ex.Polarity, extrema),
		Duration:    durationFactor(elapsed),
	}
	f.Total = f.ROM + f.Fatigue + f.Consistency + f.Trend + f.Duration
	return f
}

// stepDelta maps a summed factor score to a signed ease magnitude in
// degrees. Positive always means ease; polarity translation happens at the
// point of application. Easing steps run larger than tightening steps so the
// controller backs off faster than it ramps up.
func stepDelta(total int) float64 {
	switch {
	case total >= 5:
		return 5
	case total >= 3:
		return 3
	case total >= 1:
		return 1
	case total <= -4:
		return -3
	case total <= -2:
		return -2
	case total <= -1:
		return -1
	default:
		return 0
	}
}

// romFactor compares the window mean against the calibrated baseline. A
// drift of ten degrees toward the easy side scores the strongest ease vote.
func romFactor(p Polarity, window []float64, baseline float64) int {
	if len(window) == 0 {
		return 0
	}
	decline := p.easeAmount(mean(window) - baseline)
	switch {
	case decline >= 10:
		return 3
	case decline > 5:
		return 2
	case decline <= -10:
		return -2
	case decline < -5:
		return -1
	default:
		return 0
	}
}

// fatigueFactor measures the fractional ROM drop between the oldest and
// newest three reps of the window. It only ever votes to ease: recovering
// range is handled by the ROM and trend factors.
func fatigueFactor(ex Exercise, window []float64) int {
	drop := fatigueDrop(ex, window)
	switch {
	case drop > 0.15:
		return 4
	case drop > 0.10:
		return 3
	case drop > 0.05:
		return 1
	default:
		return 0
	}
}

// fatigueDrop is the relative decline in achieved range of motion across the
// window, with range measured from the exercise's rest angle so the value is
// polarity-neutral. Returns 0 when the window is too short to compare.
func fatigueDrop(ex Exercise, window []float64) float64 {
	if len(window) < fatigueMinWindow {
		return 0
	}
	first := mean(window[:3])
	last := mean(window[len(window)-3:])
	firstROM := ex.Polarity.easeAmount(ex.RestAngle - first)
	lastROM := ex.Polarity.easeAmount(ex.RestAngle - last)
	if firstROM <= 0 {
		return 0
	}
	return (firstROM - lastROM) / firstROM
}

// consistencyFactor bands the consistency score: erratic reps vote to ease,
// very steady reps vote to tighten.
func consistencyFactor(extrema []float64) int {
	recent := lastN(extrema, consistencyWindow)
	if len(recent) < 2 {
		return 0
	}
	score := consistencyScore(recent)
	switch {
	case score < 0.5:
		return 2
	case score < 0.7:
		return 1
	case score > 0.85:
		return -1
	default:
		return 0
	}
}

// consistencyScore maps the extrema spread to [<=1]: 1 is perfectly steady,
// and 30 degrees of standard deviation consumes the whole score.
func consistencyScore(extrema []float64) float64 {
	return 1 - stddev(extrema)/30
}

// trendFactor compares the two most recent half-windows of five reps. It
// abstains entirely until ten training reps exist.
func trendFactor(p Polarity, extrema []float64) int {
	if len(extrema) < trendWindow {
		return 0
	}
	n := len(extrema)
	older := mean(extrema[n-10 : n-5])
	recent := mean(extrema[n-5:])
	decline := p.easeAmount(recent - older)
	switch {
	case decline > 5:
		return 2
	case decline < -5:
		return -1
	default:
		return 0
	}
}

func durationFactor(elapsed time.Duration) int {
	switch m := elapsed.Minutes(); {
	case m > 15:
		return 2
	case m > 10:
		return 1
	default:
		return 0
	}
}

// lastN returns the trailing n elements of xs, or all of xs when shorter.
func lastN(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

// mean returns the arithmetic mean of xs, or 0 for an empty slice.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev returns the population standard deviation of xs.
func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var sq float64
	for _, x := range xs {
		d := x - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}

package engine

import (
	"time"

	"github.com/claude/flexion/internal/models"
)

// State is the rep detection state.
type State int

const (
	// StateRest waits for the angle to cross the movement threshold.
	StateRest State = iota
	// StateMoving tracks a rep in flight that has not yet reached the
	// minimum completion threshold.
	StateMoving
	// StateThresholdMet tracks a rep that has crossed the minimum
	// threshold and now counts regardless of how much deeper it goes.
	StateThresholdMet
)

func (s State) String() string {
	switch s {
	case StateMoving:
		return "moving"
	case StateThresholdMet:
		return "threshold_met"
	default:
		return "rest"
	}
}

// maxRepFrames bounds the per-rep feature buffer. At 30 fps this is half a
// minute; anything longer is not a rep.
const maxRepFrames = 900

// repOutcome is one completed movement cycle as seen by the detector. The
// session layer decides whether it scores as a training rep or feeds
// calibration.
type repOutcome struct {
	extremum       float64
	crossedMinimum bool
	start          time.Time
	end            time.Time
	frames         []models.FeatureFrame
}

// detector runs the three-state rep machine over a single angle stream.
// Transitions depend only on the samples fed in, so identical streams yield
// identical outcomes.
type detector struct {
	ex           Exercise
	state        State
	minThreshold float64
	hasThreshold bool

	prev    float64
	prevAt  time.Time
	hasPrev bool

	extremum float64
	repStart time.Time
	frames   []models.FeatureFrame
}

func newDetector(ex Exercise) *detector {
	return &detector{ex: ex}
}

// setMinimumThreshold installs the current minimum completion threshold.
// Unset during calibration, when no rep can reach StateThresholdMet.
func (d *detector) setMinimumThreshold(v float64) {
	d.minThreshold = v
	d.hasThreshold = true
}

// reset returns the machine to rest and forgets any rep in flight.
func (d *detector) reset() {
	d.state = StateRest
	d.hasThreshold = false
	d.hasPrev = false
	d.frames = nil
}

// exitLevel is the return crossing: the movement threshold widened toward
// the easy side by the hysteresis band.
func (d *detector) exitLevel() float64 {
	return d.ex.MovementThreshold + d.ex.Polarity.EaseDelta(d.ex.Hysteresis)
}

// feed advances the machine by one sample. It returns a completed rep when
// the sample closes one, and ok=false when the sample is implausible and was
// dropped without advancing any state.
func (d *detector) feed(s models.AngleSample) (out *repOutcome, ok bool) {
	a := s.AngleDegrees
	if a < d.ex.MinAngle || a > d.ex.MaxAngle {
		return nil, false
	}
	defer func() {
		d.prev = a
		d.prevAt = s.Timestamp
		d.hasPrev = true
	}()

	switch d.state {
	case StateRest:
		if !d.hasPrev {
			return nil, true
		}
		// Arming needs both the threshold crossing and a confirming
		// frame delta, so a single noisy sample cannot start a rep.
		if d.ex.Polarity.Harder(a, d.ex.MovementThreshold) &&
			d.ex.Polarity.towardHarder(a-d.prev, d.ex.MinDelta) {
			d.state = StateMoving
			d.repStart = s.Timestamp
			d.extremum = a
			d.frames = d.frames[:0]
			d.collect(s)
		}
		return nil, true

	case StateMoving:
		d.extremum = d.ex.Polarity.MoreExtreme(d.extremum, a)
		d.collect(s)
		if d.hasThreshold && d.ex.Polarity.HarderOrEqual(a, d.minThreshold) {
			d.state = StateThresholdMet
			return nil, true
		}
		if d.returned(a) {
			return d.complete(s, false), true
		}
		return nil, true

	case StateThresholdMet:
		d.extremum = d.ex.Polarity.MoreExtreme(d.extremum, a)
		d.collect(s)
		if d.returned(a) {
			return d.complete(s, true), true
		}
		return nil, true
	}
	return nil, true
}

// returned reports whether the angle has recrossed the widened movement
// threshold back toward rest.
func (d *detector) returned(a float64) bool {
	return d.ex.Polarity.Harder(d.exitLevel(), a)
}

func (d *detector) collect(s models.AngleSample) {
	if len(d.frames) >= maxRepFrames {
		return
	}
	var vel float64
	if d.hasPrev {
		if dt := s.Timestamp.Sub(d.prevAt).Seconds(); dt > 0 {
			vel = (s.AngleDegrees - d.prev) / dt
		}
	}
	d.frames = append(d.frames, models.FeatureFrame{
		ElapsedMS:    s.Timestamp.Sub(d.repStart).Milliseconds(),
		AngleDegrees: s.AngleDegrees,
		VelocityDPS:  vel,
	})
}

func (d *detector) complete(s models.AngleSample, crossedMinimum bool) *repOutcome {
	frames := make([]models.FeatureFrame, len(d.frames))
	copy(frames, d.frames)
	out := &repOutcome{
		extremum:       d.extremum,
		crossedMinimum: crossedMinimum,
		start:          d.repStart,
		end:            s.Timestamp,
		frames:         frames,
	}
	d.state = StateRest
	d.frames = d.frames[:0]
	return out
}

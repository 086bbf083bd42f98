package engine

import (
	"math"

	"github.com/claude/flexion/internal/models"
)

// CalibrationReps is the number of baseline reps collected before training
// targets exist. No defaults stand in for them: until the third rep lands
// there is no target state at all.
const CalibrationReps = 3

// calibrator accumulates baseline-phase extrema.
type calibrator struct {
	extrema []float64
}

func (c *calibrator) add(extremum float64) {
	if len(c.extrema) < CalibrationReps {
		c.extrema = append(c.extrema, extremum)
	}
}

func (c *calibrator) count() int { return len(c.extrema) }

func (c *calibrator) full() bool { return len(c.extrema) >= CalibrationReps }

func (c *calibrator) reset() { c.extrema = nil }

// baselineROM is the most extreme of the calibration extrema: the deepest
// squat of the three, the highest raise.
func (c *calibrator) baselineROM(p Polarity) float64 {
	rom := c.extrema[0]
	for _, x := range c.extrema[1:] {
		rom = p.MoreExtreme(rom, x)
	}
	return rom
}

// DeriveTargets builds the initial target state from a calibrated baseline
// ROM. The push target sits a fixed offset past the baseline on the hard
// side; the minimum threshold sits at a fixed proportion on the easy side.
func DeriveTargets(rom float64, p Polarity) models.TargetState {
	return models.TargetState{
		BaselineROM:      rom,
		MinimumThreshold: math.Round(rom * p.thresholdRatio()),
		PushTarget:       rom + p.pushOffset(),
		UserBest:         rom,
	}
}

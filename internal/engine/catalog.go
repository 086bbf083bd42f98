package engine

import (
	"sort"

	"github.com/claude/flexion/internal/models"
)

// Exercise holds the fixed per-kind tuning constants. These are deployment
// constants, not user settings: adaptation moves targets, never these.
type Exercise struct {
	Kind string
	Name string
	// Polarity is the hard direction for the tracked joint angle.
	Polarity Polarity
	// RestAngle is the nominal joint angle between reps.
	RestAngle float64
	// MovementThreshold arms rep detection when crossed in the hard
	// direction. Fixed per exercise; adaptation never moves it.
	MovementThreshold float64
	// Hysteresis widens the return crossing by this many degrees toward
	// the easy side so jitter at the threshold cannot end a rep early.
	Hysteresis float64
	// MinDelta is the frame-to-frame angle change, toward the hard side,
	// required to confirm deliberate motion on rep entry.
	MinDelta float64
	// MinAngle and MaxAngle bound plausible samples; anything outside is
	// dropped before it reaches the state machine.
	MinAngle float64
	MaxAngle float64
}

var catalog = map[string]Exercise{
	"squat": {
		Kind:              "squat",
		Name:              "Squat",
		Polarity:          LowerIsHarder,
		RestAngle:         175,
		MovementThreshold: 160,
		Hysteresis:        2,
		MinDelta:          0.5,
		MinAngle:          30,
		MaxAngle:          185,
	},
	"hip_hinge": {
		Kind:              "hip_hinge",
		Name:              "Hip Hinge",
		Polarity:          LowerIsHarder,
		RestAngle:         170,
		MovementThreshold: 150,
		Hysteresis:        2,
		MinDelta:          0.5,
		MinAngle:          40,
		MaxAngle:          185,
	},
	"shoulder_raise": {
		Kind:              "shoulder_raise",
		Name:              "Shoulder Raise",
		Polarity:          HigherIsHarder,
		RestAngle:         20,
		MovementThreshold: 40,
		Hysteresis:        2,
		MinDelta:          0.5,
		MinAngle:          0,
		MaxAngle:          180,
	},
}

// Row maps the exercise to its catalog row form, used by the exercises API
// and to seed the exercises table.
func (e Exercise) Row() models.ExerciseRow {
	return models.ExerciseRow{
		Kind:              e.Kind,
		Name:              e.Name,
		Polarity:          e.Polarity.String(),
		RestAngle:         e.RestAngle,
		MovementThreshold: e.MovementThreshold,
		Enabled:           true,
	}
}

// LookupExercise returns the tuning constants for kind.
func LookupExercise(kind string) (Exercise, bool) {
	ex, ok := catalog[kind]
	return ex, ok
}

// Exercises returns the full catalog sorted by kind.
func Exercises() []Exercise {
	out := make([]Exercise, 0, len(catalog))
	for _, ex := range catalog {
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

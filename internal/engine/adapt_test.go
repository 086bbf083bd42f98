package engine

import (
	"testing"
	"time"

	"github.com/claude/flexion/internal/models"
)

func TestRomFactor(t *testing.T) {
	tests := []struct {
		name     string
		polarity Polarity
		window   []float64
		baseline float64
		want     int
	}{
		{"ten degree decline", LowerIsHarder, []float64{98}, 88, 3},
		{"six degree decline", LowerIsHarder, []float64{94}, 88, 2},
		{"five degrees is not a decline", LowerIsHarder, []float64{93}, 88, 0},
		{"holding baseline", LowerIsHarder, []float64{88}, 88, 0},
		{"six degree improvement", LowerIsHarder, []float64{82}, 88, -1},
		{"ten degree improvement", LowerIsHarder, []float64{78}, 88, -2},
		{"decline on a raise", HigherIsHarder, []float64{80}, 90, 3},
		{"improvement on a raise", HigherIsHarder, []float64{100}, 90, -2},
		{"empty window", LowerIsHarder, nil, 88, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := romFactor(tt.polarity, tt.window, tt.baseline); got != tt.want {
				t.Errorf("romFactor = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFatigueFactor(t *testing.T) {
	squat := testExercise(t, "squat")
	tests := []struct {
		name   string
		window []float64
		want   int
	}{
		{"sharp drop", []float64{90, 90, 90, 110, 110, 110}, 4},
		{"moderate drop", []float64{90, 90, 90, 100.2, 100.2, 100.2}, 3},
		{"mild drop", []float64{90, 90, 90, 96.8, 96.8, 96.8}, 1},
		{"steady", []float64{90, 90, 90, 91.7, 91.7, 91.7}, 0},
		{"improving never scores", []float64{110, 110, 110, 90, 90, 90}, 0},
		{"window too short", []float64{90, 90, 90}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fatigueFactor(squat, tt.window); got != tt.want {
				t.Errorf("fatigueFactor = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestConsistencyFactor(t *testing.T) {
	tests := []struct {
		name    string
		extrema []float64
		want    int
	}{
		{"perfectly steady", []float64{100, 100, 100, 100, 100}, -1},
		{"middling", []float64{100, 110, 100, 110, 100}, 0},
		{"loose", []float64{90, 90, 110, 110, 110}, 1},
		{"erratic", []float64{60, 100, 140, 60, 100}, 2},
		{"single rep abstains", []float64{100}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := consistencyFactor(tt.extrema); got != tt.want {
				t.Errorf("consistencyFactor = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTrendFactor(t *testing.T) {
	decline := []float64{90, 90, 90, 90, 90, 96, 96, 96, 96, 96}
	improve := []float64{96, 96, 96, 96, 96, 90, 90, 90, 90, 90}
	flat := []float64{90, 90, 90, 90, 90, 92, 92, 92, 92, 92}

	if got := trendFactor(LowerIsHarder, decline); got != 2 {
		t.Errorf("trendFactor(decline) = %d, want 2", got)
	}
	if got := trendFactor(LowerIsHarder, improve); got != -1 {
		t.Errorf("trendFactor(improve) = %d, want -1", got)
	}
	if got := trendFactor(LowerIsHarder, flat); got != 0 {
		t.Errorf("trendFactor(flat) = %d, want 0", got)
	}
	if got := trendFactor(LowerIsHarder, decline[:9]); got != 0 {
		t.Errorf("trendFactor(short history) = %d, want 0", got)
	}
	if got := trendFactor(HigherIsHarder, decline); got != -1 {
		t.Errorf("trendFactor(decline, higher is harder) = %d, want -1", got)
	}
}

func TestDurationFactor(t *testing.T) {
	tests := []struct {
		minutes float64
		want    int
	}{
		{5, 0}, {10, 0}, {11, 1}, {15, 1}, {16, 2}, {40, 2},
	}
	for _, tt := range tests {
		elapsed := time.Duration(tt.minutes * float64(time.Minute))
		if got := durationFactor(elapsed); got != tt.want {
			t.Errorf("durationFactor(%vm) = %d, want %d", tt.minutes, got, tt.want)
		}
	}
}

func TestStepDelta(t *testing.T) {
	tests := []struct {
		total int
		want  float64
	}{
		{9, 5}, {5, 5}, {4, 3}, {3, 3}, {2, 1}, {1, 1},
		{0, 0},
		{-1, -1}, {-2, -2}, {-3, -2}, {-4, -3}, {-7, -3},
	}
	for _, tt := range tests {
		if got := stepDelta(tt.total); got != tt.want {
			t.Errorf("stepDelta(%d) = %v, want %v", tt.total, got, tt.want)
		}
	}
}

// TestAdaptationEasesForStrugglingUser walks the whole local pipeline for a
// user whose depth is collapsing twelve minutes in: every factor lands on
// the easing side and the target backs off by the full step.
func TestAdaptationEasesForStrugglingUser(t *testing.T) {
	squat := testExercise(t, "squat")
	history := []float64{90, 90, 90, 110, 110, 110}

	f := EvaluateAdaptation(squat, history, 88, 12*time.Minute)
	want := models.AdaptationFactors{ROM: 3, Fatigue: 4, Consistency: 1, Trend: 0, Duration: 1, Total: 9}
	if f != want {
		t.Fatalf("EvaluateAdaptation = %+v, want %+v", f, want)
	}

	ts := DeriveTargets(88, LowerIsHarder)
	ts.PushTarget += LowerIsHarder.EaseDelta(stepDelta(f.Total))
	if clampTarget(&ts) {
		t.Error("clamp engaged inside the envelope")
	}
	recomputeMinimum(&ts, LowerIsHarder)

	if ts.PushTarget != 83 {
		t.Errorf("PushTarget = %v, want 83", ts.PushTarget)
	}
	if ts.MinimumThreshold != 108 {
		t.Errorf("MinimumThreshold = %v, want 108", ts.MinimumThreshold)
	}
}

// TestEvaluateAdaptationIsPure repeats an evaluation on frozen inputs; the
// factors must not move without new reps or a new clock reading.
func TestEvaluateAdaptationIsPure(t *testing.T) {
	squat := testExercise(t, "squat")
	history := []float64{92, 95, 90, 97, 94, 96, 91, 93}

	first := EvaluateAdaptation(squat, history, 88, 7*time.Minute)
	second := EvaluateAdaptation(squat, history, 88, 7*time.Minute)
	if first != second {
		t.Errorf("repeated evaluation differs: %+v then %+v", first, second)
	}
}

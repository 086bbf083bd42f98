package engine

import (
	"io"
	"log/slog"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/claude/flexion/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// playCycle feeds one full movement cycle into the session and returns the
// events it produced plus the advanced sample clock.
func playCycle(t *testing.T, s *Session, at time.Time, turn float64) ([]models.SessionEvent, time.Time) {
	t.Helper()
	var events []models.SessionEvent
	for _, a := range sweepAngles(s.ex.RestAngle, turn, 5) {
		events = append(events, s.ProcessSample(models.AngleSample{
			Timestamp:    at,
			Exercise:     s.ex.Kind,
			AngleDegrees: a,
		})...)
		at = at.Add(100 * time.Millisecond)
	}
	return events, at
}

// calibratedSession drives a fresh squat session through its three
// calibration reps (extrema 95, 88, 92) so targets exist: baseline 88,
// minimum threshold 114, push target 78.
func calibratedSession(t *testing.T, gw *Gateway) (*Session, time.Time) {
	t.Helper()
	s := NewSession(uuid.New(), 1, testExercise(t, "squat"), gw, discardLogger())
	at := testStart
	for _, turn := range []float64{95, 88, 92} {
		_, at = playCycle(t, s, at, turn)
	}
	if s.phase != models.PhaseTraining {
		t.Fatalf("phase after calibration = %v, want training", s.phase)
	}
	return s, at
}

// eventsOfType filters an event batch by type.
func eventsOfType(events []models.SessionEvent, typ string) []models.SessionEvent {
	var out []models.SessionEvent
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestSessionCalibrationDerivesTargets(t *testing.T) {
	s := NewSession(uuid.New(), 1, testExercise(t, "squat"), nil, discardLogger())
	at := testStart

	events, at := playCycle(t, s, at, 95)
	if n := len(eventsOfType(events, models.EventCalibrationRep)); n != 1 {
		t.Fatalf("calibration events after first cycle = %d, want 1", n)
	}
	if _, ok := s.Target(); ok {
		t.Fatal("target exists before calibration completes")
	}

	_, at = playCycle(t, s, at, 88)
	if s.Phase() != models.PhaseBaseline {
		t.Fatal("phase left baseline after two calibration reps")
	}

	events, _ = playCycle(t, s, at, 92)
	if n := len(eventsOfType(events, models.EventPhase)); n != 1 {
		t.Fatalf("phase events after third cycle = %d, want 1", n)
	}
	targets := eventsOfType(events, models.EventTarget)
	if len(targets) != 1 || targets[0].Source != models.TargetSourceCalibration {
		t.Fatalf("target events = %+v, want one calibration-sourced event", targets)
	}

	got, ok := s.Target()
	if !ok {
		t.Fatal("no target after full calibration")
	}
	want := models.TargetState{BaselineROM: 88, MinimumThreshold: 114, PushTarget: 78, UserBest: 88}
	if got != want {
		t.Errorf("target = %+v, want %+v", got, want)
	}
	if len(s.Reps()) != 0 {
		t.Errorf("rep records after calibration = %d, want 0", len(s.Reps()))
	}
}

func TestSessionIncompleteCalibrationHasNoTargets(t *testing.T) {
	s := NewSession(uuid.New(), 1, testExercise(t, "squat"), nil, discardLogger())
	at := testStart
	_, at = playCycle(t, s, at, 95)
	_, _ = playCycle(t, s, at, 90)

	if s.Phase() != models.PhaseBaseline {
		t.Errorf("phase = %v, want baseline after two reps", s.Phase())
	}
	if _, ok := s.Target(); ok {
		t.Error("target exists with an incomplete calibration buffer")
	}
	if sum := s.Finish(); sum.RepCount != 0 {
		t.Errorf("summary rep count = %d, want 0", sum.RepCount)
	}
}

// TestSessionTrainingRepFlags covers the canonical training rep: a descent
// to 110 degrees against a 114 minimum threshold and a 78 push target.
func TestSessionTrainingRepFlags(t *testing.T) {
	s, at := calibratedSession(t, nil)
	events, _ := playCycle(t, s, at, 110)

	reps := eventsOfType(events, models.EventRep)
	if len(reps) != 1 {
		t.Fatalf("rep events = %d, want 1", len(reps))
	}
	rep := reps[0].Rep
	if rep.Index != 1 {
		t.Errorf("Index = %d, want 1", rep.Index)
	}
	if rep.AchievedExtremum != 110 {
		t.Errorf("AchievedExtremum = %v, want 110", rep.AchievedExtremum)
	}
	if !rep.MinimumThresholdMet {
		t.Error("MinimumThresholdMet = false, want true")
	}
	if rep.PushTargetMet {
		t.Error("PushTargetMet = true, want false")
	}
	if rep.NewBest {
		t.Error("NewBest = true, want false against a baseline best of 88")
	}
	if rep.Feedback != "Good rep, keep it up" {
		t.Errorf("Feedback = %q, want the minimum-met line", rep.Feedback)
	}
	if rep.DurationSec <= 0 {
		t.Errorf("DurationSec = %v, want > 0", rep.DurationSec)
	}
}

func TestSessionShallowRepStillCounts(t *testing.T) {
	s, at := calibratedSession(t, nil)
	events, _ := playCycle(t, s, at, 130)

	reps := eventsOfType(events, models.EventRep)
	if len(reps) != 1 {
		t.Fatalf("rep events = %d, want 1", len(reps))
	}
	rep := reps[0].Rep
	if rep.MinimumThresholdMet {
		t.Error("MinimumThresholdMet = true for a 130 degree rep against 114")
	}
	if rep.Feedback != "Almost there, push a little further" {
		t.Errorf("Feedback = %q, want the encouragement line", rep.Feedback)
	}
	if len(s.Reps()) != 1 {
		t.Errorf("rep records = %d, want 1", len(s.Reps()))
	}
}

func TestSessionNewBestAndPushTarget(t *testing.T) {
	s, at := calibratedSession(t, nil)

	events, at := playCycle(t, s, at, 80)
	rep := eventsOfType(events, models.EventRep)[0].Rep
	if !rep.NewBest {
		t.Error("NewBest = false for an 80 degree rep against a best of 88")
	}
	if rep.PushTargetMet {
		t.Error("PushTargetMet = true, want false for 80 against 78")
	}
	if rep.Feedback != "New personal best!" {
		t.Errorf("Feedback = %q, want the personal best line", rep.Feedback)
	}

	events, _ = playCycle(t, s, at, 75)
	rep = eventsOfType(events, models.EventRep)[0].Rep
	if !rep.PushTargetMet {
		t.Error("PushTargetMet = false, want true for 75 against 78")
	}
	if got, _ := s.Target(); got.UserBest != 75 {
		t.Errorf("UserBest = %v, want 75", got.UserBest)
	}
}

// TestSessionLocalAdaptationTick drives three identical training reps; the
// perfectly steady history votes a one degree tighten at the rep-3 tick.
func TestSessionLocalAdaptationTick(t *testing.T) {
	s, at := calibratedSession(t, nil)
	var events []models.SessionEvent
	for i := 0; i < 3; i++ {
		var evs []models.SessionEvent
		evs, at = playCycle(t, s, at, 90)
		events = append(events, evs...)
	}

	targets := eventsOfType(events, models.EventTarget)
	if len(targets) != 1 {
		t.Fatalf("target events = %d, want 1 from the rep-3 tick", len(targets))
	}
	ev := targets[0]
	if ev.Source != models.TargetSourceLocal {
		t.Errorf("Source = %q, want local", ev.Source)
	}
	if ev.PushBefore == nil || *ev.PushBefore != 78 {
		t.Errorf("PushBefore = %v, want 78", ev.PushBefore)
	}
	if ev.Factors == nil || ev.Factors.Consistency != -1 || ev.Factors.Total != -1 {
		t.Errorf("Factors = %+v, want consistency -1, total -1", ev.Factors)
	}

	got, _ := s.Target()
	if got.PushTarget != 77 {
		t.Errorf("PushTarget = %v, want 77", got.PushTarget)
	}
	if got.MinimumThreshold != 100 {
		t.Errorf("MinimumThreshold = %v, want 100 (round of 77 x 1.3)", got.MinimumThreshold)
	}
	if s.detector.minThreshold != 100 {
		t.Errorf("detector threshold = %v, want 100 after the tick", s.detector.minThreshold)
	}

	// A second invocation with no intervening reps must change nothing.
	if evs := s.applyLocalAdaptation(at); len(evs) != 0 {
		t.Errorf("repeated adaptation produced %d events, want 0", len(evs))
	}
	if got, _ := s.Target(); got.PushTarget != 77 {
		t.Errorf("PushTarget after repeated tick = %v, want 77", got.PushTarget)
	}
}

// TestSessionDeterministicReplay feeds the same sample stream into two
// fresh sessions; the rep records must match exactly.
func TestSessionDeterministicReplay(t *testing.T) {
	turns := []float64{95, 88, 92, 90, 110, 85, 120, 95, 88}
	run := func() *Session {
		s := NewSession(uuid.Nil, 1, testExercise(t, "squat"), nil, discardLogger())
		at := testStart
		for _, turn := range turns {
			_, at = playCycle(t, s, at, turn)
		}
		return s
	}

	s1, s2 := run(), run()
	if !reflect.DeepEqual(s1.Reps(), s2.Reps()) {
		t.Errorf("replayed rep records differ:\n%+v\n%+v", s1.Reps(), s2.Reps())
	}
	t1, _ := s1.Target()
	t2, _ := s2.Target()
	if t1 != t2 {
		t.Errorf("replayed targets differ: %+v vs %+v", t1, t2)
	}
}

func TestSessionResetClearsState(t *testing.T) {
	s, at := calibratedSession(t, nil)
	_, _ = playCycle(t, s, at, 110)
	if len(s.Reps()) != 1 {
		t.Fatalf("rep records = %d, want 1 before reset", len(s.Reps()))
	}

	gen := s.Generation()
	s.Reset()
	if s.Generation() != gen+1 {
		t.Errorf("generation = %d, want %d", s.Generation(), gen+1)
	}
	if s.Phase() != models.PhaseBaseline {
		t.Errorf("phase = %v, want baseline", s.Phase())
	}
	if _, ok := s.Target(); ok {
		t.Error("target survives a reset")
	}
	if len(s.Reps()) != 0 {
		t.Error("rep records survive a reset")
	}
}

func TestSessionChangeExercise(t *testing.T) {
	s, _ := calibratedSession(t, nil)
	s.ChangeExercise(testExercise(t, "shoulder_raise"))

	if s.Exercise().Kind != "shoulder_raise" {
		t.Fatalf("exercise = %q, want shoulder_raise", s.Exercise().Kind)
	}
	if s.Phase() != models.PhaseBaseline {
		t.Error("phase did not return to baseline on exercise change")
	}

	// Recalibrate under the new polarity: highest raise wins.
	at := testStart.Add(time.Hour)
	for _, turn := range []float64{80, 95, 85} {
		_, at = playCycle(t, s, at, turn)
	}
	got, ok := s.Target()
	if !ok {
		t.Fatal("no target after recalibration")
	}
	if got.BaselineROM != 95 {
		t.Errorf("BaselineROM = %v, want 95", got.BaselineROM)
	}
	if got.PushTarget != 105 {
		t.Errorf("PushTarget = %v, want 105", got.PushTarget)
	}
}

func TestSessionFinishSummary(t *testing.T) {
	s, at := calibratedSession(t, nil)
	for _, turn := range []float64{90, 130, 110} {
		_, at = playCycle(t, s, at, turn)
	}

	sum := s.Finish()
	if sum.RepCount != 3 {
		t.Fatalf("RepCount = %d, want 3", sum.RepCount)
	}
	if want := 2.0 / 3.0; sum.CompletionRate != want {
		t.Errorf("CompletionRate = %v, want %v", sum.CompletionRate, want)
	}
	if sum.ROMSpan != 40 {
		t.Errorf("ROMSpan = %v, want 40", sum.ROMSpan)
	}
	if sum.BestExtremum != 90 {
		t.Errorf("BestExtremum = %v, want 90", sum.BestExtremum)
	}
	wantConsistency := 1 - math.Sqrt(800.0/3)/30
	if math.Abs(sum.Consistency-wantConsistency) > 1e-12 {
		t.Errorf("Consistency = %v, want %v", sum.Consistency, wantConsistency)
	}
	if sum.DurationSec <= 0 {
		t.Errorf("DurationSec = %v, want > 0", sum.DurationSec)
	}
}

func TestSessionStatusTracksDetector(t *testing.T) {
	s, at := calibratedSession(t, nil)
	if got := s.Status(); got.State != "rest" {
		t.Errorf("State = %q, want rest", got.State)
	}

	// Descend partway so a rep is in flight.
	for _, a := range []float64{175, 170, 150, 140} {
		s.ProcessSample(models.AngleSample{Timestamp: at, Exercise: "squat", AngleDegrees: a})
		at = at.Add(100 * time.Millisecond)
	}
	got := s.Status()
	if got.State != "moving" {
		t.Errorf("State = %q, want moving mid-descent", got.State)
	}
	if got.Phase != models.PhaseTraining {
		t.Errorf("Phase = %v, want training", got.Phase)
	}
	if got.Target == nil || got.Target.PushTarget != 78 {
		t.Errorf("Target = %+v, want push 78", got.Target)
	}
}

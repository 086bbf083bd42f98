package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/claude/flexion/internal/models"
)

type stubQuality struct {
	resp *models.QualityResponse
	err  error
}

func (f *stubQuality) ScoreRep(context.Context, models.QualityRequest) (*models.QualityResponse, error) {
	return f.resp, f.err
}

type stubPolicy struct {
	resp *models.PolicyResponse
	err  error
}

func (f *stubPolicy) NextAction(context.Context, models.PolicyRequest) (*models.PolicyResponse, error) {
	return f.resp, f.err
}

// waitForResults polls until the gateway buffer holds at least n results.
func waitForResults(t *testing.T, g *Gateway, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(g.results) < n {
		if time.Now().After(deadline) {
			t.Fatalf("advisory results = %d, want at least %d", len(g.results), n)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestGatewayDrainIsNonBlocking(t *testing.T) {
	g := NewGateway(nil, nil, 0, discardLogger())
	if got := g.Drain(); len(got) != 0 {
		t.Errorf("Drain on empty gateway = %d results, want 0", len(got))
	}
}

func TestGatewayFullBufferDropsResults(t *testing.T) {
	g := NewGateway(nil, nil, 0, discardLogger())
	for i := 0; i < resultBuffer+4; i++ {
		g.deliver(advice{kind: models.TargetSourceMicro, repIndex: i})
	}
	if got := len(g.Drain()); got != resultBuffer {
		t.Errorf("buffered results = %d, want %d", got, resultBuffer)
	}
}

func TestMicroAdvisoryAppliedWithinBound(t *testing.T) {
	s, at := calibratedSession(t, nil)
	s.gateway.deliver(advice{
		kind:       models.TargetSourceMicro,
		generation: s.Generation(),
		repIndex:   1,
		quality:    &models.QualityResponse{QualityScore: 0.8, SuggestedTargetAngle: 77},
	})

	events := s.applyAdvice(at)
	advisories := eventsOfType(events, models.EventAdvisory)
	if len(advisories) != 1 || advisories[0].Status != models.AdvisoryApplied {
		t.Fatalf("advisory events = %+v, want one applied", advisories)
	}
	targets := eventsOfType(events, models.EventTarget)
	if len(targets) != 1 || targets[0].Source != models.TargetSourceMicro {
		t.Fatalf("target events = %+v, want one micro-sourced", targets)
	}

	got, _ := s.Target()
	if got.PushTarget != 77 {
		t.Errorf("PushTarget = %v, want 77", got.PushTarget)
	}
	if got.MinimumThreshold != 100 {
		t.Errorf("MinimumThreshold = %v, want 100", got.MinimumThreshold)
	}
	if s.detector.minThreshold != 100 {
		t.Errorf("detector threshold = %v, want 100", s.detector.minThreshold)
	}
}

func TestMicroAdvisoryDeferredBeyondBound(t *testing.T) {
	s, at := calibratedSession(t, nil)
	s.gateway.deliver(advice{
		kind:       models.TargetSourceMicro,
		generation: s.Generation(),
		repIndex:   1,
		quality:    &models.QualityResponse{QualityScore: 0.4, SuggestedTargetAngle: 85},
	})

	events := s.applyAdvice(at)
	advisories := eventsOfType(events, models.EventAdvisory)
	if len(advisories) != 1 || advisories[0].Status != models.AdvisoryDeferred {
		t.Fatalf("advisory events = %+v, want one deferred", advisories)
	}
	if len(eventsOfType(events, models.EventTarget)) != 0 {
		t.Error("deferred suggestion still produced a target event")
	}
	if got, _ := s.Target(); got.PushTarget != 78 {
		t.Errorf("PushTarget = %v, want 78 untouched", got.PushTarget)
	}
}

func TestMicroAdvisoryWithoutSuggestion(t *testing.T) {
	s, at := calibratedSession(t, nil)
	s.gateway.deliver(advice{
		kind:       models.TargetSourceMicro,
		generation: s.Generation(),
		repIndex:   1,
		quality:    &models.QualityResponse{QualityScore: 0.9},
	})

	events := s.applyAdvice(at)
	advisories := eventsOfType(events, models.EventAdvisory)
	if len(advisories) != 1 || advisories[0].Status != models.AdvisoryNoop {
		t.Fatalf("advisory events = %+v, want one noop", advisories)
	}
	if got, _ := s.Target(); got.PushTarget != 78 {
		t.Errorf("PushTarget = %v, want 78", got.PushTarget)
	}
}

func TestMacroAdvisoryActions(t *testing.T) {
	tests := []struct {
		name           string
		action         int
		wantPush       float64
		wantMin        float64
		wantStatus     string
		wantAnnotation string
	}{
		{"ease", models.ActionEase, 83, 108, models.AdvisoryApplied, ""},
		{"maintain", models.ActionMaintain, 78, 114, models.AdvisoryNoop, ""},
		{"tighten", models.ActionTighten, 73, 95, models.AdvisoryApplied, ""},
		{"rest", models.ActionRest, 78, 114, models.AdvisoryAnnotation, models.AnnotationRest},
		{"encourage", models.ActionEncourage, 78, 114, models.AdvisoryAnnotation, models.AnnotationEncourage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, at := calibratedSession(t, nil)
			s.gateway.deliver(advice{
				kind:       models.TargetSourceMacro,
				generation: s.Generation(),
				repIndex:   5,
				policy:     &models.PolicyResponse{Action: tt.action},
			})

			events := s.applyAdvice(at)
			advisories := eventsOfType(events, models.EventAdvisory)
			if len(advisories) != 1 || advisories[0].Status != tt.wantStatus {
				t.Fatalf("advisory events = %+v, want one %s", advisories, tt.wantStatus)
			}
			annotations := eventsOfType(events, models.EventAnnotation)
			if tt.wantAnnotation == "" && len(annotations) != 0 {
				t.Errorf("unexpected annotations %+v", annotations)
			}
			if tt.wantAnnotation != "" {
				if len(annotations) != 1 || annotations[0].Annotation != tt.wantAnnotation {
					t.Errorf("annotations = %+v, want one %q", annotations, tt.wantAnnotation)
				}
			}
			got, _ := s.Target()
			if got.PushTarget != tt.wantPush {
				t.Errorf("PushTarget = %v, want %v", got.PushTarget, tt.wantPush)
			}
			if got.MinimumThreshold != tt.wantMin {
				t.Errorf("MinimumThreshold = %v, want %v", got.MinimumThreshold, tt.wantMin)
			}
		})
	}
}

func TestMacroAdvisoryUnknownAction(t *testing.T) {
	s, at := calibratedSession(t, nil)
	s.gateway.deliver(advice{
		kind:       models.TargetSourceMacro,
		generation: s.Generation(),
		policy:     &models.PolicyResponse{Action: 9},
	})

	events := s.applyAdvice(at)
	advisories := eventsOfType(events, models.EventAdvisory)
	if len(advisories) != 1 || advisories[0].Status != models.AdvisoryError {
		t.Fatalf("advisory events = %+v, want one error", advisories)
	}
	if got, _ := s.Target(); got.PushTarget != 78 {
		t.Errorf("PushTarget = %v, want 78", got.PushTarget)
	}
}

// TestAdvisoryConflictOrder delivers a macro action and a micro suggestion
// in the same batch; the micro must land first even though it arrived
// second, and the macro step applies on top of it.
func TestAdvisoryConflictOrder(t *testing.T) {
	s, at := calibratedSession(t, nil)
	gen := s.Generation()
	s.gateway.deliver(advice{
		kind:       models.TargetSourceMacro,
		generation: gen,
		policy:     &models.PolicyResponse{Action: models.ActionTighten},
	})
	s.gateway.deliver(advice{
		kind:       models.TargetSourceMicro,
		generation: gen,
		quality:    &models.QualityResponse{SuggestedTargetAngle: 77},
	})

	events := s.applyAdvice(at)
	targets := eventsOfType(events, models.EventTarget)
	if len(targets) != 2 {
		t.Fatalf("target events = %d, want 2", len(targets))
	}
	if targets[0].Source != models.TargetSourceMicro || targets[1].Source != models.TargetSourceMacro {
		t.Errorf("target order = %q then %q, want micro then macro",
			targets[0].Source, targets[1].Source)
	}

	got, _ := s.Target()
	if got.PushTarget != 72 {
		t.Errorf("PushTarget = %v, want 72 (77 from micro, minus 5 from macro)", got.PushTarget)
	}
	if got.MinimumThreshold != 94 {
		t.Errorf("MinimumThreshold = %v, want 94", got.MinimumThreshold)
	}
}

// TestAdvisoryClampIsFinal batches enough tighten actions to drive the push
// target through the envelope floor; the clamp must be the last word.
func TestAdvisoryClampIsFinal(t *testing.T) {
	s, at := calibratedSession(t, nil)
	for i := 0; i < 5; i++ {
		s.gateway.deliver(advice{
			kind:       models.TargetSourceMacro,
			generation: s.Generation(),
			policy:     &models.PolicyResponse{Action: models.ActionTighten},
		})
	}

	events := s.applyAdvice(at)
	targets := eventsOfType(events, models.EventTarget)
	if len(targets) == 0 {
		t.Fatal("no target events")
	}
	last := targets[len(targets)-1]
	if last.Source != models.TargetSourceClamp {
		t.Errorf("final target event source = %q, want clamp", last.Source)
	}

	got, _ := s.Target()
	if got.PushTarget != 58 {
		t.Errorf("PushTarget = %v, want 58 (floor of the baseline envelope)", got.PushTarget)
	}
	if !LowerIsHarder.Harder(got.PushTarget, got.MinimumThreshold) {
		t.Errorf("MinimumThreshold %v not easier than PushTarget %v", got.MinimumThreshold, got.PushTarget)
	}
}

// TestStaleAdvisoryDiscarded parks an advisory result from a previous
// generation, resets the session, and checks that the result is discarded
// at apply time instead of touching the recalibrated target.
func TestStaleAdvisoryDiscarded(t *testing.T) {
	s, at := calibratedSession(t, nil)
	s.gateway.deliver(advice{
		kind:       models.TargetSourceMicro,
		generation: s.Generation(),
		quality:    &models.QualityResponse{SuggestedTargetAngle: 77},
	})

	s.Reset()
	for _, turn := range []float64{95, 88, 92} {
		_, at = playCycle(t, s, at, turn)
	}
	events, _ := playCycle(t, s, at, 110)

	advisories := eventsOfType(events, models.EventAdvisory)
	if len(advisories) != 1 || advisories[0].Status != models.AdvisoryStale {
		t.Fatalf("advisory events = %+v, want one stale", advisories)
	}
	if got, _ := s.Target(); got.PushTarget != 78 {
		t.Errorf("PushTarget = %v, want 78 untouched by the stale result", got.PushTarget)
	}
}

// TestAdvisoryFailureFallback forces both advisory services to error on
// every call; the session must keep counting reps and keep its targets
// valid and bounded on local factors alone.
func TestAdvisoryFailureFallback(t *testing.T) {
	gw := NewGateway(
		&stubQuality{err: errors.New("quality service down")},
		&stubPolicy{err: errors.New("policy service down")},
		time.Second, discardLogger(),
	)
	s, at := calibratedSession(t, gw)

	sawError := false
	for i := 0; i < 12; i++ {
		var events []models.SessionEvent
		events, at = playCycle(t, s, at, 90+float64(i%4)*5)
		for _, ev := range eventsOfType(events, models.EventAdvisory) {
			if ev.Status == models.AdvisoryError {
				sawError = true
			}
			if ev.Status == models.AdvisoryApplied {
				t.Fatalf("failing advisory was applied: %+v", ev)
			}
		}
		got, ok := s.Target()
		if !ok {
			t.Fatal("target vanished mid-session")
		}
		if got.PushTarget < 58 || got.PushTarget > 118 {
			t.Fatalf("PushTarget = %v escaped the envelope", got.PushTarget)
		}
		if !LowerIsHarder.Harder(got.PushTarget, got.MinimumThreshold) {
			t.Fatalf("MinimumThreshold %v not easier than PushTarget %v",
				got.MinimumThreshold, got.PushTarget)
		}
		// Each rep dispatches a quality call; wait for its failure to
		// land so the next boundary drains it.
		waitForResults(t, s.gateway, 1)
	}

	if !sawError {
		t.Error("no advisory error outcome observed across 12 reps")
	}
	if got := len(s.Reps()); got != 12 {
		t.Errorf("rep records = %d, want 12", got)
	}
}

func TestPolicyStateVector(t *testing.T) {
	squat := testExercise(t, "squat")
	reps := []models.RepRecord{
		{AchievedExtremum: 90, MinimumThresholdMet: true},
		{AchievedExtremum: 130},
	}
	target := models.TargetState{BaselineROM: 88, PushTarget: 78}

	v := policyState(squat, reps, target, 30*time.Minute)
	if len(v) != models.PolicyStateSize {
		t.Fatalf("vector length = %d, want %d", len(v), models.PolicyStateSize)
	}
	if v[0] != 90.0/180 || v[1] != 130.0/180 {
		t.Errorf("extrema slots = %v, %v, want normalized 90 and 130", v[0], v[1])
	}
	for i := 2; i < 10; i++ {
		if v[i] != 0 {
			t.Errorf("v[%d] = %v, want zero padding", i, v[i])
		}
	}
	if v[12] != 0.5 {
		t.Errorf("elapsed slot = %v, want 0.5 hours", v[12])
	}
	if v[13] != 78.0/180 {
		t.Errorf("target slot = %v, want %v", v[13], 78.0/180)
	}
	if v[14] != 88.0/180 {
		t.Errorf("baseline slot = %v, want %v", v[14], 88.0/180)
	}
	if v[15] != 2.0/50 {
		t.Errorf("rep count slot = %v, want %v", v[15], 2.0/50)
	}
	if v[16] != 0.5 {
		t.Errorf("success rate slot = %v, want 0.5", v[16])
	}
	for i := 17; i < 20; i++ {
		if v[i] != 0 {
			t.Errorf("v[%d] = %v, want zero padding", i, v[i])
		}
	}
}

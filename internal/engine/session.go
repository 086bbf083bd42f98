package engine

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/claude/flexion/internal/models"
)

// Session owns one user's live exercise state: the detector, calibration
// buffer, target state, and rep history. Sessions share nothing with each
// other, and all methods must be called from a single goroutine; the only
// concurrency is the advisory gateway, whose results re-enter through Drain
// at rep boundaries.
type Session struct {
	id      uuid.UUID
	userID  int
	ex      Exercise
	gateway *Gateway
	log     *slog.Logger

	phase      models.Phase
	detector   *detector
	calib      calibrator
	target     models.TargetState
	hasTarget  bool
	reps       []models.RepRecord
	generation uint64

	startedAt   time.Time
	lastAt      time.Time
	evaluatedAt int
	dropped     int
}

// NewSession builds an empty baseline-phase session for one user and
// exercise.
func NewSession(id uuid.UUID, userID int, ex Exercise, gateway *Gateway, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	if gateway == nil {
		gateway = NewGateway(nil, nil, 0, log)
	}
	return &Session{
		id:       id,
		userID:   userID,
		ex:       ex,
		gateway:  gateway,
		log:      log,
		phase:    models.PhaseBaseline,
		detector: newDetector(ex),
	}
}

func (s *Session) ID() uuid.UUID        { return s.id }
func (s *Session) UserID() int          { return s.userID }
func (s *Session) Exercise() Exercise   { return s.ex }
func (s *Session) Phase() models.Phase  { return s.phase }
func (s *Session) Generation() uint64   { return s.generation }
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Target returns the current target state; ok is false until calibration
// completes.
func (s *Session) Target() (models.TargetState, bool) {
	return s.target, s.hasTarget
}

// Reps returns a copy of the rep history.
func (s *Session) Reps() []models.RepRecord {
	out := make([]models.RepRecord, len(s.reps))
	copy(out, s.reps)
	return out
}

// Status snapshots the session for the read API.
func (s *Session) Status() models.SessionStatus {
	st := models.SessionStatus{
		ID:             s.id,
		UserID:         s.userID,
		Exercise:       s.ex.Kind,
		Phase:          s.phase,
		State:          s.detector.state.String(),
		Generation:     s.generation,
		RepCount:       len(s.reps),
		DroppedSamples: s.dropped,
		StartedAt:      s.startedAt,
	}
	if s.hasTarget {
		t := s.target
		st.Target = &t
	}
	return st
}

// ProcessSample consumes one angle sample and returns the events it
// produced, if any. It never blocks on advisory traffic: outstanding
// advisory results are applied retroactively at the next completed rep.
func (s *Session) ProcessSample(sample models.AngleSample) []models.SessionEvent {
	if s.startedAt.IsZero() {
		s.startedAt = sample.Timestamp
	}
	// The session clock runs on sample timestamps, not wall time, so a
	// replayed stream adapts exactly like the live one did.
	s.lastAt = sample.Timestamp

	out, ok := s.detector.feed(sample)
	if !ok {
		s.dropped++
		s.log.Debug("implausible sample dropped", "session", s.id, "angle", sample.AngleDegrees)
		return nil
	}
	if out == nil {
		return nil
	}
	if s.phase == models.PhaseBaseline {
		return s.finishCalibrationRep(out)
	}
	return s.finishTrainingRep(out)
}

// Reset atomically clears the session back to an empty baseline phase. The
// generation bump makes every in-flight advisory response stale at apply
// time.
func (s *Session) Reset() {
	s.generation++
	s.phase = models.PhaseBaseline
	s.calib.reset()
	s.reps = nil
	s.target = models.TargetState{}
	s.hasTarget = false
	s.evaluatedAt = 0
	s.detector.reset()
	s.startedAt = time.Time{}
	s.lastAt = time.Time{}
	s.log.Info("session reset", "session", s.id, "generation", s.generation)
}

// ChangeExercise switches the session to a different exercise kind. This is
// a full reset: calibration starts over under the new kind's constants.
func (s *Session) ChangeExercise(ex Exercise) {
	s.ex = ex
	s.detector = newDetector(ex)
	s.Reset()
	s.log.Info("exercise changed", "session", s.id, "exercise", ex.Kind)
}

// Finish computes the end-of-session summary for the reward collaborator.
// If calibration never completed there are no reps and the summary is empty.
func (s *Session) Finish() models.SessionSummary {
	sum := Summarize(s.ex, s.reps, s.elapsed())
	s.log.Info("session finished", "session", s.id,
		"reps", sum.RepCount, "consistency", sum.Consistency, "completion_rate", sum.CompletionRate)
	return sum
}

// elapsed is the sample-time session clock.
func (s *Session) elapsed() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	return s.lastAt.Sub(s.startedAt)
}

func (s *Session) finishCalibrationRep(out *repOutcome) []models.SessionEvent {
	s.calib.add(out.extremum)
	s.log.Info("calibration rep recorded", "session", s.id,
		"count", s.calib.count(), "extremum", out.extremum)
	events := []models.SessionEvent{{
		Type:             models.EventCalibrationRep,
		Timestamp:        out.end,
		CalibrationCount: s.calib.count(),
	}}
	if !s.calib.full() {
		return events
	}

	// Third calibration rep: derive targets and flip to training. This
	// transition happens exactly once per generation.
	rom := s.calib.baselineROM(s.ex.Polarity)
	s.target = DeriveTargets(rom, s.ex.Polarity)
	s.hasTarget = true
	s.phase = models.PhaseTraining
	s.detector.setMinimumThreshold(s.target.MinimumThreshold)
	s.log.Info("baseline calibrated", "session", s.id, "baseline_rom", rom,
		"minimum_threshold", s.target.MinimumThreshold, "push_target", s.target.PushTarget)

	t := s.target
	return append(events,
		models.SessionEvent{Type: models.EventPhase, Timestamp: out.end, Phase: models.PhaseTraining},
		models.SessionEvent{Type: models.EventTarget, Timestamp: out.end, Source: models.TargetSourceCalibration, Target: &t},
	)
}

func (s *Session) finishTrainingRep(out *repOutcome) []models.SessionEvent {
	idx := len(s.reps) + 1
	newBest := observeExtremum(&s.target, s.ex.Polarity, out.extremum)
	rec := models.RepRecord{
		Index:               idx,
		AchievedExtremum:    out.extremum,
		MinimumThresholdMet: out.crossedMinimum,
		PushTargetMet:       s.ex.Polarity.HarderOrEqual(out.extremum, s.target.PushTarget),
		NewBest:             newBest,
		Duration:            out.end.Sub(out.start),
		DurationSec:         out.end.Sub(out.start).Seconds(),
		CompletedAt:         out.end,
	}
	rec.Feedback = feedbackFor(rec)
	s.reps = append(s.reps, rec)
	s.log.Info("rep completed", "session", s.id, "index", idx,
		"extremum", rec.AchievedExtremum, "minimum_met", rec.MinimumThresholdMet, "push_met", rec.PushTargetMet)

	repCopy := rec
	events := []models.SessionEvent{{Type: models.EventRep, Timestamp: out.end, Rep: &repCopy}}

	if idx%AdaptInterval == 0 {
		events = append(events, s.applyLocalAdaptation(out.end)...)
	}
	events = append(events, s.applyAdvice(out.end)...)
	s.dispatchAdvisories(idx, out)
	return events
}

// applyLocalAdaptation runs one tick of the multi-factor controller. The
// evaluatedAt guard keeps the tick idempotent: without intervening new reps
// a repeated invocation changes nothing.
func (s *Session) applyLocalAdaptation(at time.Time) []models.SessionEvent {
	if len(s.reps) <= s.evaluatedAt {
		return nil
	}
	s.evaluatedAt = len(s.reps)
	factors := EvaluateAdaptation(s.ex, repExtrema(s.reps), s.target.BaselineROM, s.elapsed())
	mag := stepDelta(factors.Total)
	s.log.Info("adaptation evaluated", "session", s.id,
		"rom", factors.ROM, "fatigue", factors.Fatigue, "consistency", factors.Consistency,
		"trend", factors.Trend, "duration", factors.Duration, "total", factors.Total, "step", mag)
	if mag == 0 {
		return nil
	}
	events := []models.SessionEvent{
		s.setPush(at, models.TargetSourceLocal, s.target.PushTarget+s.ex.Polarity.EaseDelta(mag), &factors),
	}
	if ev, clamped := s.clampStep(at); clamped {
		events = append(events, ev)
	}
	s.detector.setMinimumThreshold(s.target.MinimumThreshold)
	return events
}

// applyAdvice drains buffered advisory results and folds them into the
// target: micro suggestions first, macro actions second, safety clamp last.
func (s *Session) applyAdvice(at time.Time) []models.SessionEvent {
	batch := s.gateway.Drain()
	if len(batch) == 0 {
		return nil
	}
	var events []models.SessionEvent
	changed := false
	for _, a := range batch {
		if a.kind != models.TargetSourceMicro {
			continue
		}
		evs, did := s.applyMicro(at, a)
		events = append(events, evs...)
		changed = changed || did
	}
	for _, a := range batch {
		if a.kind != models.TargetSourceMacro {
			continue
		}
		evs, did := s.applyMacro(at, a)
		events = append(events, evs...)
		changed = changed || did
	}
	if changed {
		if ev, clamped := s.clampStep(at); clamped {
			events = append(events, ev)
		}
		s.detector.setMinimumThreshold(s.target.MinimumThreshold)
	}
	return events
}

func (s *Session) applyMicro(at time.Time, a advice) ([]models.SessionEvent, bool) {
	if ev, ok := s.vetAdvice(at, a); !ok {
		return ev, false
	}
	resp := a.quality
	if resp == nil || resp.SuggestedTargetAngle == 0 {
		return []models.SessionEvent{s.adviceEvent(at, a, models.AdvisoryNoop, "")}, false
	}
	delta := resp.SuggestedTargetAngle - s.target.PushTarget
	if delta > microApplyLimit || delta < -microApplyLimit {
		s.log.Info("micro advisory deferred, suggestion too large", "session", s.id,
			"rep", a.repIndex, "suggested", resp.SuggestedTargetAngle, "delta", delta)
		return []models.SessionEvent{s.adviceEvent(at, a, models.AdvisoryDeferred, resp.Feedback)}, false
	}
	events := []models.SessionEvent{
		s.adviceEvent(at, a, models.AdvisoryApplied, resp.Feedback),
		s.setPush(at, models.TargetSourceMicro, resp.SuggestedTargetAngle, nil),
	}
	return events, true
}

func (s *Session) applyMacro(at time.Time, a advice) ([]models.SessionEvent, bool) {
	if ev, ok := s.vetAdvice(at, a); !ok {
		return ev, false
	}
	resp := a.policy
	if resp == nil {
		s.log.Warn("macro advisory returned no action", "session", s.id, "rep", a.repIndex)
		return []models.SessionEvent{s.adviceEvent(at, a, models.AdvisoryError, "")}, false
	}
	switch resp.Action {
	case models.ActionEase:
		events := []models.SessionEvent{
			s.adviceEvent(at, a, models.AdvisoryApplied, ""),
			s.setPush(at, models.TargetSourceMacro, s.target.PushTarget+s.ex.Polarity.EaseDelta(macroStepDegrees), nil),
		}
		return events, true
	case models.ActionTighten:
		events := []models.SessionEvent{
			s.adviceEvent(at, a, models.AdvisoryApplied, ""),
			s.setPush(at, models.TargetSourceMacro, s.target.PushTarget+s.ex.Polarity.EaseDelta(-macroStepDegrees), nil),
		}
		return events, true
	case models.ActionMaintain:
		return []models.SessionEvent{s.adviceEvent(at, a, models.AdvisoryNoop, "")}, false
	case models.ActionRest:
		return []models.SessionEvent{
			s.adviceEvent(at, a, models.AdvisoryAnnotation, ""),
			{Type: models.EventAnnotation, Timestamp: at, Annotation: models.AnnotationRest, Message: "Looking tired, consider a short rest"},
		}, false
	case models.ActionEncourage:
		return []models.SessionEvent{
			s.adviceEvent(at, a, models.AdvisoryAnnotation, ""),
			{Type: models.EventAnnotation, Timestamp: at, Annotation: models.AnnotationEncourage, Message: "Strong set, keep it going!"},
		}, false
	default:
		s.log.Warn("macro advisory returned unknown action", "session", s.id,
			"rep", a.repIndex, "action", resp.Action)
		return []models.SessionEvent{s.adviceEvent(at, a, models.AdvisoryError, "")}, false
	}
}

// vetAdvice handles the outcomes shared by both advisory kinds: stale
// generations and transport errors, each a logged no-op.
func (s *Session) vetAdvice(at time.Time, a advice) ([]models.SessionEvent, bool) {
	if a.generation != s.generation {
		s.log.Info("stale advisory discarded", "session", s.id,
			"kind", a.kind, "rep", a.repIndex, "generation", a.generation)
		return []models.SessionEvent{s.adviceEvent(at, a, models.AdvisoryStale, "")}, false
	}
	if a.err != nil {
		s.log.Warn("advisory call failed", "session", s.id,
			"kind", a.kind, "rep", a.repIndex, "error", a.err)
		return []models.SessionEvent{s.adviceEvent(at, a, models.AdvisoryError, "")}, false
	}
	return nil, true
}

func (s *Session) adviceEvent(at time.Time, a advice, status, message string) models.SessionEvent {
	return models.SessionEvent{
		Type:      models.EventAdvisory,
		Timestamp: at,
		Source:    a.kind,
		Status:    status,
		LatencyMS: a.latency.Milliseconds(),
		Message:   message,
	}
}

// setPush moves the push target through one pipeline step and rederives the
// minimum threshold so the two stay in fixed proportion.
func (s *Session) setPush(at time.Time, source string, push float64, factors *models.AdaptationFactors) models.SessionEvent {
	before := s.target.PushTarget
	s.target.PushTarget = push
	recomputeMinimum(&s.target, s.ex.Polarity)
	s.log.Info("push target adjusted", "session", s.id, "source", source,
		"before", before, "after", s.target.PushTarget, "minimum_threshold", s.target.MinimumThreshold)
	t := s.target
	return models.SessionEvent{
		Type:       models.EventTarget,
		Timestamp:  at,
		Source:     source,
		PushBefore: &before,
		Target:     &t,
		Factors:    factors,
	}
}

// clampStep forces the push target back inside the safety envelope and
// rederives the minimum from the clamped value. Reports whether it engaged.
func (s *Session) clampStep(at time.Time) (models.SessionEvent, bool) {
	before := s.target.PushTarget
	if !clampTarget(&s.target) {
		return models.SessionEvent{}, false
	}
	recomputeMinimum(&s.target, s.ex.Polarity)
	s.log.Info("push target clamped to safety envelope", "session", s.id,
		"before", before, "after", s.target.PushTarget, "baseline", s.target.BaselineROM)
	t := s.target
	return models.SessionEvent{
		Type:       models.EventTarget,
		Timestamp:  at,
		Source:     models.TargetSourceClamp,
		PushBefore: &before,
		Target:     &t,
	}, true
}

func (s *Session) dispatchAdvisories(idx int, out *repOutcome) {
	s.gateway.RequestQuality(s.generation, idx, models.QualityRequest{
		UserID:   s.userID,
		Exercise: s.ex.Kind,
		RepIndex: idx,
		Frames:   out.frames,
	})
	if idx%MacroInterval == 0 {
		s.gateway.RequestPolicy(s.generation, idx, models.PolicyRequest{
			State: policyState(s.ex, s.reps, s.target, s.elapsed()),
		})
	}
}

// feedbackFor picks the per-rep coaching line from the rep's flags.
func feedbackFor(r models.RepRecord) string {
	switch {
	case r.NewBest:
		return "New personal best!"
	case r.PushTargetMet:
		return "Target exceeded, outstanding rep!"
	case r.MinimumThresholdMet:
		return "Good rep, keep it up"
	default:
		return "Almost there, push a little further"
	}
}

// repExtrema projects the rep history onto its extrema, oldest first.
func repExtrema(reps []models.RepRecord) []float64 {
	out := make([]float64, len(reps))
	for i, r := range reps {
		out[i] = r.AchievedExtremum
	}
	return out
}

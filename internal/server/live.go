package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/claude/flexion/internal/engine"
	"github.com/claude/flexion/internal/models"
)

// liveSession wraps one running engine session. The mutex serializes all
// engine access, so concurrently arriving sample batches are applied one at
// a time and the engine keeps its single-goroutine contract.
type liveSession struct {
	mu         sync.Mutex
	sess       *engine.Session
	lastActive time.Time

	// SSE subscribers
	subs   map[chan sseEvent]struct{}
	subsMu sync.Mutex
}

// sseEvent is an SSE message to send to subscribers.
type sseEvent struct {
	Event string
	Data  string
}

func (ls *liveSession) broadcast(event sseEvent) {
	ls.subsMu.Lock()
	defer ls.subsMu.Unlock()
	for ch := range ls.subs {
		select {
		case ch <- event:
		default:
			// slow subscriber, skip
		}
	}
}

func (ls *liveSession) subscribe() chan sseEvent {
	ch := make(chan sseEvent, 32)
	ls.subsMu.Lock()
	ls.subs[ch] = struct{}{}
	ls.subsMu.Unlock()
	return ch
}

func (ls *liveSession) unsubscribe(ch chan sseEvent) {
	ls.subsMu.Lock()
	delete(ls.subs, ch)
	ls.subsMu.Unlock()
}

// touch marks the session as recently used for the idle sweep.
func (ls *liveSession) touch() {
	ls.mu.Lock()
	ls.lastActive = time.Now()
	ls.mu.Unlock()
}

// liveManager tracks the sessions currently accepting samples. Each session
// gets its own advisory gateway so one user's slow advisory calls never
// stall another's.
type liveManager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*liveSession

	quality engine.QualityAdvisor
	policy  engine.PolicyAdvisor
	timeout time.Duration
	log     *slog.Logger
}

func newLiveManager(quality engine.QualityAdvisor, policy engine.PolicyAdvisor, timeout time.Duration, log *slog.Logger) *liveManager {
	return &liveManager{
		sessions: make(map[uuid.UUID]*liveSession),
		quality:  quality,
		policy:   policy,
		timeout:  timeout,
		log:      log,
	}
}

func (m *liveManager) start(userID int, ex engine.Exercise) *liveSession {
	id := uuid.New()
	gw := engine.NewGateway(m.quality, m.policy, m.timeout, m.log)
	ls := &liveSession{
		sess:       engine.NewSession(id, userID, ex, gw, m.log),
		lastActive: time.Now(),
		subs:       make(map[chan sseEvent]struct{}),
	}

	m.mu.Lock()
	m.sessions[id] = ls
	m.mu.Unlock()
	return ls
}

func (m *liveManager) get(id uuid.UUID) (*liveSession, bool) {
	m.mu.RLock()
	ls, ok := m.sessions[id]
	m.mu.RUnlock()
	return ls, ok
}

func (m *liveManager) remove(id uuid.UUID) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *liveManager) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// takeIdle removes and returns sessions whose last activity is older than
// maxIdle. The caller finalizes them outside the manager lock.
func (m *liveManager) takeIdle(maxIdle time.Duration) []*liveSession {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()

	var idle []*liveSession
	for id, ls := range m.sessions {
		ls.mu.Lock()
		stale := ls.lastActive.Before(cutoff)
		ls.mu.Unlock()
		if stale {
			idle = append(idle, ls)
			delete(m.sessions, id)
		}
	}
	return idle
}

// SweepIdleSessions finalizes sessions that stopped receiving samples. The
// entrypoint calls this on a ticker; abandoned sessions still get their
// summary persisted instead of leaking.
func (s *Server) SweepIdleSessions(maxIdle time.Duration) int {
	idle := s.live.takeIdle(maxIdle)
	for _, ls := range idle {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		summary := s.finalizeSession(ctx, ls)
		cancel()
		ls.broadcast(sseEvent{Event: "expired", Data: mustJSON(summary)})
		s.log.Info("idle session finalized", "session", ls.sess.ID(), "reps", summary.RepCount)
	}
	return len(idle)
}

// finalizeSession computes the engine summary and persists the session's
// final row. Used by both the finish endpoint and the idle sweep.
func (s *Server) finalizeSession(ctx context.Context, ls *liveSession) models.SessionSummary {
	ls.mu.Lock()
	summary := ls.sess.Finish()
	status := ls.sess.Status()
	ls.mu.Unlock()

	if s.db == nil {
		return summary
	}
	if err := s.db.UpdateSessionProgress(ctx, status.ID, status.Phase, status.RepCount, status.Target); err != nil {
		s.log.Error("persisting session progress", "session", status.ID, "error", err)
	}
	if err := s.db.FinishSession(ctx, status.ID, time.Now(), summary); err != nil {
		s.log.Error("persisting session summary", "session", status.ID, "error", err)
	}
	return summary
}

// persistEvents writes the rows derived from one batch of engine events:
// completed reps, target changes, and advisory outcomes. Persistence errors
// are logged and skipped; a database hiccup must not interrupt a workout.
func (s *Server) persistEvents(ctx context.Context, status models.SessionStatus, events []models.SessionEvent) {
	if s.db == nil || len(events) == 0 {
		return
	}

	gen := int64(status.Generation)
	var reps []models.RepRow

	for _, ev := range events {
		switch ev.Type {
		case models.EventRep:
			reps = append(reps, models.RepRow{
				SessionID:           status.ID,
				UserID:              status.UserID,
				Generation:          gen,
				RepIndex:            ev.Rep.Index,
				AchievedExtremum:    ev.Rep.AchievedExtremum,
				MinimumThresholdMet: ev.Rep.MinimumThresholdMet,
				PushTargetMet:       ev.Rep.PushTargetMet,
				NewBest:             ev.Rep.NewBest,
				DurationSec:         ev.Rep.DurationSec,
				CompletedAt:         ev.Rep.CompletedAt,
				Feedback:            ev.Rep.Feedback,
			})
		case models.EventTarget:
			row := models.TargetEventRow{
				SessionID:        status.ID,
				UserID:           status.UserID,
				Generation:       gen,
				At:               ev.Timestamp,
				Source:           ev.Source,
				PushBefore:       ev.PushBefore,
				PushAfter:        ev.Target.PushTarget,
				MinimumThreshold: ev.Target.MinimumThreshold,
			}
			if ev.Factors != nil {
				if b, err := json.Marshal(ev.Factors); err == nil {
					row.Factors = b
				}
			}
			if err := s.db.InsertTargetEvent(ctx, row); err != nil {
				s.log.Error("persisting target event", "session", status.ID, "error", err)
			}
		case models.EventAdvisory:
			latency := ev.LatencyMS
			if err := s.db.InsertAdvisoryLog(ctx, models.AdvisoryLogRow{
				SessionID:  status.ID,
				UserID:     status.UserID,
				Generation: gen,
				At:         ev.Timestamp,
				Kind:       ev.Source,
				Status:     ev.Status,
				LatencyMS:  &latency,
				Detail:     ev.Message,
			}); err != nil {
				s.log.Error("persisting advisory outcome", "session", status.ID, "error", err)
			}
		case models.EventAnnotation:
			if err := s.db.InsertAdvisoryLog(ctx, models.AdvisoryLogRow{
				SessionID:  status.ID,
				UserID:     status.UserID,
				Generation: gen,
				At:         ev.Timestamp,
				Kind:       ev.Annotation,
				Status:     models.AdvisoryAnnotation,
				Detail:     ev.Message,
			}); err != nil {
				s.log.Error("persisting annotation", "session", status.ID, "error", err)
			}
		}
	}

	if len(reps) > 0 {
		if _, err := s.db.InsertReps(ctx, reps); err != nil {
			s.log.Error("persisting reps", "session", status.ID, "error", err)
		}
	}
	if err := s.db.UpdateSessionProgress(ctx, status.ID, status.Phase, status.RepCount, status.Target); err != nil {
		s.log.Error("persisting session progress", "session", status.ID, "error", err)
	}
}

// handleSessionEvents streams a live session's events as SSE. The stream
// starts with a status snapshot and closes when the session finishes or
// expires.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.liveSessionFromRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := ls.subscribe()
	defer ls.unsubscribe(ch)

	// Send current status immediately
	ls.mu.Lock()
	status := ls.sess.Status()
	ls.mu.Unlock()
	fmt.Fprintf(w, "event: status\ndata: %s\n\n", mustJSON(status))
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data)
			flusher.Flush()

			if evt.Event == "summary" || evt.Event == "expired" {
				return
			}
		}
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{}`
	}
	return string(b)
}

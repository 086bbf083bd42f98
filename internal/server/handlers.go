package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claude/flexion/internal/engine"
	"github.com/claude/flexion/internal/models"
)

// startSessionRequest is the JSON body for creating a session. Either a
// known user_id or a user_name (created on first use) may be given; with
// neither, the session belongs to the default local user.
type startSessionRequest struct {
	UserID   int    `json:"user_id,omitempty"`
	UserName string `json:"user_name,omitempty"`
	Exercise string `json:"exercise"`
}

// ingestResponse returns the events a sample batch produced plus the
// resulting session snapshot.
type ingestResponse struct {
	Events []models.SessionEvent `json:"events"`
	Status models.SessionStatus  `json:"status"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	ex, ok := engine.LookupExercise(req.Exercise)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown exercise: " + req.Exercise})
		return
	}

	userID, err := s.resolveUser(r, req)
	if err != nil {
		s.log.Error("resolving user", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	ls := s.live.start(userID, ex)
	if s.db != nil {
		inserted, err := s.db.InsertSession(r.Context(), models.SessionRow{
			ID:        ls.sess.ID(),
			UserID:    userID,
			Exercise:  ex.Kind,
			Source:    models.SessionSourceLive,
			Phase:     models.PhaseBaseline,
			StartedAt: time.Now(),
		})
		if err != nil || !inserted {
			s.live.remove(ls.sess.ID())
			s.log.Error("creating session row", "session", ls.sess.ID(), "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "creating session"})
			return
		}
	}

	s.log.Info("session started", "session", ls.sess.ID(), "user", userID, "exercise", ex.Kind)
	writeJSON(w, http.StatusCreated, ls.sess.Status())
}

func (s *Server) handleIngestSamples(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.liveSessionFromRequest(w, r)
	if !ok {
		return
	}

	var batch models.SampleBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	if len(batch.Samples) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty sample batch"})
		return
	}

	events := []models.SessionEvent{}
	ls.mu.Lock()
	for _, sample := range batch.Samples {
		events = append(events, ls.sess.ProcessSample(sample)...)
	}
	status := ls.sess.Status()
	ls.lastActive = time.Now()
	ls.mu.Unlock()

	s.persistEvents(r.Context(), status, events)
	for _, ev := range events {
		ls.broadcast(sseEvent{Event: ev.Type, Data: mustJSON(ev)})
	}

	writeJSON(w, http.StatusOK, ingestResponse{Events: events, Status: status})
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.liveSessionFromRequest(w, r)
	if !ok {
		return
	}

	ls.mu.Lock()
	ls.sess.Reset()
	status := ls.sess.Status()
	ls.lastActive = time.Now()
	ls.mu.Unlock()

	if s.db != nil {
		if err := s.db.UpdateSessionProgress(r.Context(), status.ID, status.Phase, 0, nil); err != nil {
			s.log.Error("persisting session reset", "session", status.ID, "error", err)
		}
	}
	ls.broadcast(sseEvent{Event: "reset", Data: mustJSON(status)})
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleChangeExercise(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.liveSessionFromRequest(w, r)
	if !ok {
		return
	}

	var req struct {
		Exercise string `json:"exercise"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	ex, found := engine.LookupExercise(req.Exercise)
	if !found {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown exercise: " + req.Exercise})
		return
	}

	ls.mu.Lock()
	ls.sess.ChangeExercise(ex)
	status := ls.sess.Status()
	ls.lastActive = time.Now()
	ls.mu.Unlock()

	if s.db != nil {
		if err := s.db.UpdateSessionExercise(r.Context(), status.ID, ex.Kind); err != nil {
			s.log.Error("persisting exercise change", "session", status.ID, "error", err)
		}
	}
	ls.broadcast(sseEvent{Event: "reset", Data: mustJSON(status)})
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleFinishSession(w http.ResponseWriter, r *http.Request) {
	ls, ok := s.liveSessionFromRequest(w, r)
	if !ok {
		return
	}

	summary := s.finalizeSession(r.Context(), ls)
	ls.broadcast(sseEvent{Event: "summary", Data: mustJSON(summary)})
	s.live.remove(ls.sess.ID())

	writeJSON(w, http.StatusOK, summary)
}

// handleGetSession returns the live snapshot while a session is running,
// and the stored row once it has finished.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return
	}

	if ls, ok := s.live.get(id); ok {
		ls.mu.Lock()
		status := ls.sess.Status()
		ls.mu.Unlock()
		writeJSON(w, http.StatusOK, status)
		return
	}

	if s.db == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	row, err := s.db.GetSession(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no database configured"})
		return
	}

	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	rows, err := s.db.QuerySessions(r.Context(), queryUserID(r), start, end)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleSessionReps(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionIDFromRequest(w, r)
	if !ok {
		return
	}
	reps, err := s.db.QuerySessionReps(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, reps)
}

func (s *Server) handleTargetEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionIDFromRequest(w, r)
	if !ok {
		return
	}
	events, err := s.db.QueryTargetEvents(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleAdvisoryLog(w http.ResponseWriter, r *http.Request) {
	id, ok := s.sessionIDFromRequest(w, r)
	if !ok {
		return
	}
	entries, err := s.db.QueryAdvisoryLog(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleExercises(w http.ResponseWriter, r *http.Request) {
	exercises := engine.Exercises()
	rows := make([]models.ExerciseRow, 0, len(exercises))
	for _, ex := range exercises {
		rows = append(rows, ex.Row())
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no database configured"})
		return
	}
	users, err := s.db.ListUsers(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no database configured"})
		return
	}

	userID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user ID"})
		return
	}
	exercise := r.URL.Query().Get("exercise")
	if exercise == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exercise parameter required"})
		return
	}

	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if r.URL.Query().Get("start") == "" {
		// Progress charts default to the last 3 months
		start = end.AddDate(0, -3, 0)
	}

	bucket := "1 week"
	switch r.URL.Query().Get("agg") {
	case "daily":
		bucket = "1 day"
	case "monthly":
		bucket = "1 month"
	case "weekly", "":
		bucket = "1 week"
	}

	periods, err := s.db.GetProgressSummary(r.Context(), userID, exercise, start, end, bucket)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, periods)
}

// handleRepQuality grades a user's reps against the targets active when each
// completed, bucketed into quality bands. Unlike progress, the exercise
// filter is optional: with none, bands span all exercises.
func (s *Server) handleRepQuality(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no database configured"})
		return
	}

	userID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user ID"})
		return
	}

	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if r.URL.Query().Get("start") == "" {
		// Quality charts default to the last 3 months
		start = end.AddDate(0, -3, 0)
	}

	result, err := s.db.GetRepQuality(r.Context(), userID, r.URL.Query().Get("exercise"), start, end)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReplayRuns(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no database configured"})
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.db.QueryReplayRuns(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no database configured"})
		return
	}
	stats, err := s.db.GetUserStats(r.Context(), queryUserID(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Healthy(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "live_sessions": s.live.count()})
}

// resolveUser maps the request's user fields to a user ID. Names are created
// on first use; with no user at all the default local user applies.
func (s *Server) resolveUser(r *http.Request, req startSessionRequest) (int, error) {
	if req.UserName != "" && s.db != nil {
		return s.db.GetOrCreateUser(r.Context(), req.UserName)
	}
	if req.UserID > 0 {
		return req.UserID, nil
	}
	return 1, nil
}

func (s *Server) liveSessionFromRequest(w http.ResponseWriter, r *http.Request) (*liveSession, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return nil, false
	}
	ls, ok := s.live.get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no live session with that ID"})
		return nil, false
	}
	return ls, true
}

// sessionIDFromRequest parses the {id} route param for the history endpoints,
// which also need a database to answer from.
func (s *Server) sessionIDFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return uuid.Nil, false
	}
	if s.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no database configured"})
		return uuid.Nil, false
	}
	return id, true
}

func queryUserID(r *http.Request) int {
	if v := r.URL.Query().Get("user_id"); v != "" {
		if id, err := strconv.Atoi(v); err == nil && id > 0 {
			return id
		}
	}
	return 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseTimeRange(r *http.Request) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" {
		// Default: last 7 days
		end = time.Now()
		start = end.AddDate(0, 0, -7)
		return
	}

	start, err = time.Parse(time.RFC3339, startStr)
	if err != nil {
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	if endStr == "" {
		end = time.Now()
	} else {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			end, err = time.Parse("2006-01-02", endStr)
			if err != nil {
				return time.Time{}, time.Time{}, err
			}
			// End of day for date-only
			end = end.Add(24 * time.Hour)
		}
	}
	return
}

package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/claude/flexion/internal/engine"
	"github.com/claude/flexion/internal/storage"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	db     *storage.DB
	live   *liveManager
	log    *slog.Logger
	apiKey string
	router chi.Router
}

// New creates a new Server with all routes configured. The advisors may be
// nil, in which case sessions run on local adaptation alone.
func New(db *storage.DB, quality engine.QualityAdvisor, policy engine.PolicyAdvisor, advisoryTimeout time.Duration, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		db:     db,
		live:   newLiveManager(quality, policy, advisoryTimeout, log),
		log:    log,
		apiKey: apiKey,
		router: chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Get("/healthz", s.handleHealthz)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Session lifecycle (API key required)
		r.Group(func(r chi.Router) {
			r.Use(APIKeyAuth(s.apiKey))
			r.Post("/sessions", s.handleStartSession)
			r.Post("/sessions/{id}/samples", s.handleIngestSamples)
			r.Post("/sessions/{id}/reset", s.handleResetSession)
			r.Post("/sessions/{id}/exercise", s.handleChangeExercise)
			r.Post("/sessions/{id}/finish", s.handleFinishSession)
		})

		// Dashboard API endpoints (no auth — tsnet handles access)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/sessions/{id}/events", s.handleSessionEvents)
		r.Get("/sessions/{id}/reps", s.handleSessionReps)
		r.Get("/sessions/{id}/targets", s.handleTargetEvents)
		r.Get("/sessions/{id}/advisory", s.handleAdvisoryLog)
		r.Get("/exercises", s.handleExercises)
		r.Get("/users", s.handleListUsers)
		r.Get("/users/{id}/progress", s.handleProgress)
		r.Get("/users/{id}/quality", s.handleRepQuality)
		r.Get("/stats", s.handleStats)
		r.Get("/replay-runs", s.handleReplayRuns)
	})
}

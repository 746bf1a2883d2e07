package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/claude/repflow/internal/engine"
	"github.com/claude/repflow/internal/storage"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	engine *engine.Engine
	store  storage.Store
	log    *slog.Logger
	apiKey string
	router chi.Router
}

// New creates a new Server with all routes configured.
func New(eng *engine.Engine, store storage.Store, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		engine: eng,
		store:  store,
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

	// Session intents (API key required)
	s.router.Route("/api/v1/session", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/start", s.handleStart)
		r.Post("/finish", s.handleFinish)
		r.Post("/minimize", s.handleMinimize)
		r.Post("/notes", s.handleNotes)
		r.Post("/rest/skip", s.handleSkipRest)
		r.Post("/rest/extend", s.handleExtendRest)
		r.Post("/lifecycle/background", s.handleBackground)
		r.Post("/lifecycle/foreground", s.handleForeground)
		r.Post("/exercises/{exercise}/sets", s.handleAddSet)
		r.Delete("/exercises/{exercise}/sets", s.handleRemoveSet)
		r.Post("/exercises/{exercise}/sets/{set}/complete", s.handleCompleteSet)
		r.Post("/exercises/{exercise}/sets/{set}/intensity", s.handleOverrideIntensity)
		r.Patch("/exercises/{exercise}/sets/{set}", s.handleUpdateSet)
	})

	// Read API (no auth — tsnet handles access)
	s.router.Get("/api/v1/session", s.handleSnapshot)
	s.router.Get("/api/v1/session/watch", s.handleWatch)
	s.router.Get("/api/v1/routines", s.handleListRoutines)
	s.router.Get("/api/v1/routines/{id}", s.handleGetRoutine)
	s.router.Get("/api/v1/history/{exercise}", s.handleHistory)
	s.router.Get("/api/v1/sessions", s.handleListSessions)
	s.router.Get("/api/v1/sessions/{id}", s.handleGetSession)
}

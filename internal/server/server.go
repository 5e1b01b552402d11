package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lazypower/tiermem/internal/engine"
	"github.com/lazypower/tiermem/internal/events"
	"github.com/lazypower/tiermem/internal/store"
)

// Server is the tiermem HTTP API server.
type Server struct {
	engine  *engine.Engine
	db      *store.DB   // nil when persistence is off
	bus     *events.Bus // nil disables /api/events
	router  chi.Router
	version string
	started time.Time
}

// New creates a Server over eng. db and bus are optional.
func New(eng *engine.Engine, db *store.DB, bus *events.Bus, version string) *Server {
	s := &Server{
		engine:  eng,
		db:      db,
		bus:     bus,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/traces", s.handleStore)
		r.Get("/traces/{id}", s.handleGet)
		r.Delete("/traces/{id}", s.handleDelete)

		r.Post("/retrieve", s.handleRetrieve)
		r.Get("/path", s.handlePath)

		r.Post("/tick", s.handleTick)
		r.Post("/pressure", s.handlePressure)
		r.Get("/stats", s.handleStats)
		r.Get("/evictions", s.handleEvictions)

		r.Get("/events", s.handleEvents)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"traces":  s.engine.Stats().Total,
		"db":      false,
	}
	if s.db != nil {
		body["db"] = s.db.Ping() == nil
		body["db_path"] = s.db.Path
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/tiermem/internal/engine"
	"github.com/lazypower/tiermem/internal/eviction"
	"github.com/lazypower/tiermem/internal/memory"
)

const defaultMaxHops = 3

// errorStatus maps engine errors onto HTTP codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, memory.ErrInvalidVector):
		return http.StatusBadRequest
	case errors.Is(err, memory.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	var req engine.StoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Content == nil && req.Text != "" {
		req.Content = req.Text
	}
	if req.Content == nil && req.Vector == nil {
		writeError(w, http.StatusBadRequest, "content or vector required")
		return
	}

	id, err := s.engine.Store(r.Context(), req)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	t, ok := s.engine.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "trace not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Remove(chi.URLParam(r, "id")); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var q engine.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	res, err := s.engine.Retrieve(r.Context(), q)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	if res.Traces == nil {
		res.Traces = []engine.Match{}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to required")
		return
	}

	maxHops := defaultMaxHops
	if h := r.URL.Query().Get("max_hops"); h != "" {
		n, err := strconv.Atoi(h)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "max_hops must be a non-negative integer")
			return
		}
		maxHops = n
	}

	path, found := s.engine.ShortestPath(from, to, maxHops)
	if path == nil {
		path = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"found": found, "path": path})
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	report := s.engine.Tick(r.Context())
	if err := s.engine.Persist(r.Context()); err != nil {
		log.Printf("tick: %v", err)
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePressure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level string `json:"level"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := eviction.ParsePressure(req.Level)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.engine.SetPressure(p)
	writeJSON(w, http.StatusOK, map[string]string{"pressure": p.String()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) handleEvictions(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "eviction log not available without a database")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	reason := eviction.Reason(r.URL.Query().Get("reason"))

	recs, err := s.db.ListEvictions(r.Context(), reason, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []eviction.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

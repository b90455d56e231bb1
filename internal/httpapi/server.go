// Package httpapi serves the operational endpoints of the bot.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type LivenessProbe interface {
	IsAlive(ctx context.Context) bool
}

type Server struct {
	metrics http.Handler
	kb      LivenessProbe
}

func New(metrics http.Handler, kb LivenessProbe) *Server {
	if metrics == nil {
		metrics = http.NotFoundHandler()
	}
	return &Server{metrics: metrics, kb: kb}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleReady reports the knowledge base state without failing on it; the
// bot answers with an apology while the backend is down.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	kb := "unknown"
	if s.kb != nil {
		kb = "down"
		if s.kb.IsAlive(r.Context()) {
			kb = "up"
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "ready",
		"knowledge_base": kb,
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Liveness probe for supervisors
	r.Get("/healthz", s.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", s.handleGetState)

		r.Route("/properties/{name}", func(r chi.Router) {
			r.Get("/", s.handleGetProperty)
			r.Put("/", s.handleSetProperty)
		})

		r.Post("/commands", s.handleSendCommand)
		r.Post("/refresh", s.handleRefresh)

		r.Get("/status", s.handleStatus)
		r.Get("/history", s.handleHistory)
		r.Get("/diagnostics", s.handleDiagnostics)
		r.Post("/probe", s.handleProbe)
	})

	// WebSocket endpoint at the configured path
	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.handleWebSocket)

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"connection": s.coordinator.ConnectionStatus().String(),
	})
}

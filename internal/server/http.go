package server

import (
	"encoding/json"
	"net/http"
)

// maxRequestBody caps POST bodies.
const maxRequestBody = 8 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *FleetServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/drivers", s.handleListDrivers)
	mux.HandleFunc("GET /v1/drivers/stream", s.handleDriverStream)
	mux.HandleFunc("GET /v1/drivers/{id}", s.handleGetDriver)
	mux.HandleFunc("POST /v1/positions", s.handlePostPosition)
	mux.HandleFunc("POST /v1/positions/batch", s.handlePostBatch)
	mux.HandleFunc("POST /v1/positions/resync", s.handlePostResync)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/watchers", s.handleWatchers)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *FleetServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.health())
}

// handleStatus handles GET /v1/status.
func (s *FleetServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Report())
}

// handleWatchers handles GET /v1/watchers.
func (s *FleetServer) handleWatchers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"watchers": s.Presence.Roster()})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

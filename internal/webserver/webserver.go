// Package webserver assembles the shared HTTP mux every trigger and the
// admin surface register routes on: ping/version/config/secret plus
// Prometheus metrics, and the HTTP trigger's own route.
package webserver

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// reservedPaths are the routes the service itself owns; a custom route
// registered on one of them is rejected.
var reservedPaths = map[string]bool{
	"/api/v3/ping":    true,
	"/api/v3/config":  true,
	"/api/v3/version": true,
	"/api/v3/secret":  true,
	"/api/v3/trigger": true,
	"/metrics":        true,
}

// Server is the shared mux the service's admin routes and trigger routes
// are registered on.
type Server struct {
	mux *http.ServeMux
}

// New creates a Server with the admin routes already registered.
func New(version string, config any) *Server {
	mux := http.NewServeMux()
	s := &Server{mux: mux}

	mux.HandleFunc("GET /api/v3/ping", handlePing)
	mux.HandleFunc("GET /api/v3/version", handleVersion(version))
	mux.HandleFunc("GET /api/v3/config", handleConfig(config))
	mux.HandleFunc("POST /api/v3/secret", handleSecretStub)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Mux returns the underlying ServeMux, for triggers to register their own
// route on (e.g. the HTTP trigger's POST /api/v3/trigger).
func (s *Server) Mux() *http.ServeMux { return s.mux }

// AddCustomRoute registers pattern with handler, rejecting collisions with
// the reserved admin and trigger paths.
func (s *Server) AddCustomRoute(pattern string, handler http.Handler) error {
	if reservedPaths[routePath(pattern)] {
		return fmt.Errorf("cannot register custom route on reserved path %q", pattern)
	}
	s.mux.Handle(pattern, handler)
	return nil
}

func routePath(pattern string) string {
	// Strip a leading "METHOD " verb, if present, so "POST /x" and "/x"
	// compare the same way reservedPaths is keyed.
	for i, r := range pattern {
		if r == ' ' {
			return pattern[i+1:]
		}
	}
	return pattern
}

func handlePing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleVersion(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": version})
	}
}

func handleConfig(config any) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, config)
	}
}

// handleSecretStub acknowledges a secret-update request without storing
// anything. The secret store is an external collaborator this SDK only
// consumes, so there is no secret-writing logic to stand behind this route
// until a real provider is wired in.
func handleSecretStub(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotImplemented, map[string]string{
		"error": "this deployment has no writable secret store configured",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

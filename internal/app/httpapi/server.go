// Package httpapi exposes the process's operational surface: a readiness
// check on /healthz plus Prometheus metrics. The invoice API itself is out
// of scope (spec §1 Non-goals) — this is the bootstrap's /healthz and
// /metrics endpoint only, per the domain-stack HTTP router wiring.
package httpapi

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthStatus is the payload returned by /healthz.
type HealthStatus struct {
	Status string `json:"status"`
}

// Server owns the chi router for the operational HTTP surface.
type Server struct {
	router http.Handler
	ready  atomic.Bool
}

// NewServer builds the router. The process starts not-ready; call
// SetReady(true) once the event bus consumers are running.
func NewServer() *Server {
	s := &Server{}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	s.router = r
	return s
}

// SetReady flips readiness; /healthz reports it once true.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{Status: "starting"}
	code := http.StatusServiceUnavailable
	if s.ready.Load() {
		status.Status = "ok"
		code = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}

// Handler returns the composed router for http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	return s.router
}

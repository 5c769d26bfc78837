// Package ops serves the operational HTTP surface of alertad: liveness,
// Prometheus metrics and the persisted management stats.
package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alerta"
	"alerta/internal/store"
)

// Store is the slice of the persistence layer the ops handlers read.
type Store interface {
	Ping(ctx context.Context) error
	ListStats(ctx context.Context) ([]store.Stat, error)
}

// Bus reports the broker connection state for the health check.
type Bus interface {
	IsConnected() bool
}

// Server holds the dependencies needed by the ops handlers.
type Server struct {
	store  Store
	bus    Bus
	logger *slog.Logger
}

// NewServer creates a Server over the given store and broker client.
func NewServer(st Store, bus Bus, logger *slog.Logger) *Server {
	return &Server{store: st, bus: bus, logger: logger}
}

// NewRouter returns the ops router:
//
//	GET /healthz             – liveness, 503 while degraded
//	GET /metrics             – Prometheus registry
//	GET /management/status   – persisted management stats
func NewRouter(srv *Server, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", srv.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/management/status", srv.handleManagementStatus)

	return r
}

// handleHealthz reports ok only while both the broker connection and the
// database are up, so orchestrators restart an instance that lost either.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !s.bus.IsConnected() || s.store.Ping(r.Context()) != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{
		"status":  status,
		"version": alerta.Version,
	})
}

// handleManagementStatus returns the durable management stats with the
// server identity and clock, the shape the operator CLI consumes.
func (s *Server) handleManagementStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.ListStats(r.Context())
	if err != nil {
		s.logger.Error("list management stats failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "cannot read management stats",
		})
		return
	}
	if stats == nil {
		stats = []store.Stat{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"application": "alerta",
		"version":     alerta.Version,
		"time":        time.Now().UnixMilli(),
		"metrics":     stats,
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

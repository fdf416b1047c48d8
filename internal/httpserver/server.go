// Package httpserver provides the chi scaffold and JSON helpers shared
// by the domain handlers.
package httpserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP server dependencies.
type Server struct {
	Router    *chi.Mux
	APIRouter chi.Router // /api/v1 sub-router for domain handlers
	Logger    *slog.Logger
	DB        *sqlx.DB
	Metrics   *prometheus.Registry
	startedAt time.Time
}

// NewServer creates an HTTP server with middleware and health/metrics
// endpoints. Domain handlers are mounted on APIRouter afterwards.
func NewServer(logger *slog.Logger, db *sqlx.DB, metricsReg *prometheus.Registry, metricsPath string) *Server {
	s := &Server{
		Router:    chi.NewRouter(),
		Logger:    logger,
		DB:        db,
		Metrics:   metricsReg,
		startedAt: time.Now(),
	}

	s.Router.Use(middleware.RequestID)
	s.Router.Use(RequestLogger(logger))
	s.Router.Use(RequestMetrics)
	s.Router.Use(middleware.Recoverer)

	s.Router.Get("/healthz", s.handleHealthz)
	s.Router.Method(http.MethodGet, metricsPath,
		promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	s.APIRouter = chi.NewRouter()
	s.Router.Mount("/api/v1", s.APIRouter)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.DB.PingContext(r.Context()); err != nil {
		RespondError(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
		return
	}
	Respond(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
}

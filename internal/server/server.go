// Package server implements the ambient liveness/metrics surface (§AMBIENT
// STACK): GET /healthz and GET /metrics, bound to localhost by default.
// This is explicitly NOT the domain CRUD/REST surface the Non-goals
// exclude — it exists only so an operator or a sidecar scraper can see
// that the process is alive, grounded on the teacher's go-chi/cors router
// shape (internal/server/server.go) stripped down to its ambient routes.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mazotrader/orchestrator/internal/telemetry"
)

// Config holds the liveness server's tunables. BindAddr defaults to
// 127.0.0.1, deliberately not 0.0.0.0 — this surface is for local
// operators/sidecars, not public exposure.
type Config struct {
	BindAddr string
	Port     int
	Log      zerolog.Logger
	Health   *telemetry.HealthChecker
	DevMode  bool
}

// Server is the ambient liveness/metrics HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	health *telemetry.HealthChecker
}

// New builds the liveness server.
func New(cfg Config) *Server {
	bind := cfg.BindAddr
	if bind == "" {
		bind = "127.0.0.1"
	}

	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		health: cfg.Health,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", bind, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods: []string{"GET"},
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", promhttp.Handler())
}

// handleHealthz runs the Health Checker's bounded pass (§4.9) and maps its
// aggregate status to an HTTP status: READY->200, DEGRADED->200,
// BLOCKED->503.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"READY","checks":[]}`))
		return
	}

	report := s.health.Run(r.Context())

	status := http.StatusOK
	if report.Status == telemetry.StatusBlocked {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"status":%q,"checked_at":%q,"checks":%d}`, report.Status, report.CheckedAt.Format(time.RFC3339), len(report.Checks))
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting liveness server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down liveness server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	handler "github.com/newthinker/arena/internal/api/handler/api"
	"github.com/newthinker/arena/internal/api/job"
	"github.com/newthinker/arena/internal/api/middleware"
	"github.com/newthinker/arena/internal/app"
	"github.com/newthinker/arena/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const healthPath = "/api/health"

// Server represents the HTTP server for the arena API
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *zap.Logger
	mux        *http.ServeMux
}

// Config holds server configuration
type Config struct {
	Host   string
	Port   int
	APIKey string
	// MetricsPath serves Prometheus metrics when set and Metrics is non-nil.
	MetricsPath string
	// DefaultGenerations is reported as the evolution job length when a
	// request leaves generations unset.
	DefaultGenerations int
}

// Dependencies holds the collaborators the routes call into.
type Dependencies struct {
	Arena   *app.Arena
	Jobs    *job.Store
	Metrics *metrics.Registry
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if deps.Arena == nil {
		return nil, fmt.Errorf("arena required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Jobs == nil {
		deps.Jobs = job.NewStore(100, 24*time.Hour)
	}

	mux := http.NewServeMux()
	s := &Server{
		logger: logger,
		mux:    mux,
	}
	s.setupRoutes(cfg, deps)

	public := []string{healthPath}
	if cfg.MetricsPath != "" {
		public = append(public, cfg.MetricsPath)
	}

	// Metrics reads the matched pattern, so nothing between it and the mux
	// may replace the request.
	var h http.Handler = mux
	h = middleware.APIKeyAuth(cfg.APIKey, public...)(h)
	h = metrics.HTTPMiddleware(deps.Metrics)(h)
	h = metrics.LoggingMiddleware(logger)(h)
	s.handler = h

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, deps Dependencies) {
	competitions := handler.NewCompetitionHandler(deps.Arena)
	evolution := handler.NewEvolutionHandler(deps.Jobs, deps.Arena, cfg.DefaultGenerations, s.logger)
	results := handler.NewResultHandler(deps.Arena.Results())
	strategies := handler.NewStrategyHandler(deps.Arena)

	// Competitions
	s.mux.HandleFunc("POST /api/v1/competitions", competitions.Create)
	s.mux.HandleFunc("GET /api/v1/competitions", competitions.List)
	s.mux.HandleFunc("POST /api/v1/competitions/{id}/competitors", competitions.Register)
	s.mux.HandleFunc("DELETE /api/v1/competitions/{id}/competitors/{cid}", competitions.Unregister)
	s.mux.HandleFunc("GET /api/v1/competitions/{id}/competitors/{cid}", competitions.Competitor)
	s.mux.HandleFunc("POST /api/v1/competitions/{id}/start", competitions.Start)
	s.mux.HandleFunc("POST /api/v1/competitions/{id}/pause", competitions.Pause)
	s.mux.HandleFunc("POST /api/v1/competitions/{id}/resume", competitions.Resume)
	s.mux.HandleFunc("POST /api/v1/competitions/{id}/stop", competitions.Stop)
	s.mux.HandleFunc("GET /api/v1/competitions/{id}/leaderboard", competitions.Leaderboard)
	s.mux.HandleFunc("GET /api/v1/competitions/{id}/status", competitions.Status)
	s.mux.HandleFunc("GET /api/v1/competitions/{id}/result", competitions.Result)

	// Archived results
	s.mux.HandleFunc("GET /api/v1/results", results.List)
	s.mux.HandleFunc("GET /api/v1/results/{id}", results.Get)

	// Evolution jobs
	s.mux.HandleFunc("POST /api/v1/evolution", evolution.Create)
	s.mux.HandleFunc("GET /api/v1/evolution/{jobID}", evolution.Get)

	s.mux.HandleFunc("GET /api/v1/strategies", strategies.List)
	s.mux.HandleFunc("GET "+healthPath, s.handleHealth)

	if cfg.MetricsPath != "" && deps.Metrics != nil {
		s.mux.Handle("GET "+cfg.MetricsPath, promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

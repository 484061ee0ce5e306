// Package api serves the admin HTTP interface: call history, live call
// control, IVR menu and agent directory management, and Prometheus
// metrics.
package api

import (
	"log/slog"
	"net/http"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/api/middleware"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/call"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/database"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Terminator ends an active call. Implemented by the call orchestrator.
type Terminator interface {
	Teardown(sess *call.Session, status string)
}

// Config holds HTTP server options.
type Config struct {
	// CORSOrigins lists allowed cross-origin hosts. Empty disables CORS.
	CORSOrigins []string
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router   *chi.Mux
	calls    database.CallLogRepository
	menus    database.MenuRepository
	agents   database.AgentRepository
	registry *call.Registry
	engine   Terminator
	metrics  http.Handler
	limiter  *middleware.IPRateLimiter
	logger   *slog.Logger
}

// NewServer creates the HTTP handler with all routes mounted. The
// metrics handler is optional; pass nil to disable the /metrics route.
func NewServer(
	calls database.CallLogRepository,
	menus database.MenuRepository,
	agents database.AgentRepository,
	registry *call.Registry,
	engine Terminator,
	metrics http.Handler,
	cfg Config,
	logger *slog.Logger,
) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		calls:    calls,
		menus:    menus,
		agents:   agents,
		registry: registry,
		engine:   engine,
		metrics:  metrics,
		limiter:  middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig()),
		logger:   logger.With("subsystem", "api"),
	}

	s.routes(cfg)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background goroutines owned by the server.
func (s *Server) Close() {
	s.limiter.Stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes(cfg Config) {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RateLimit(s.limiter))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(cfg.CORSOrigins))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Route("/calls", func(r chi.Router) {
			r.Get("/", s.handleListCalls)
			r.Get("/active", s.handleActiveCalls)
			r.Get("/{callID}", s.handleGetCall)
			r.Post("/{callID}/hangup", s.handleHangup)
		})

		r.Get("/ivr/menus", s.handleListMenus)

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", s.handleListAgents)
			r.Post("/{extension}/status", s.handleSetAgentStatus)
		})
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	s.logger.Info("api routes mounted")
}

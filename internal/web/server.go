package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/detector"
	"github.com/kozaktomas/face-attendance/internal/ledger"
	"github.com/kozaktomas/face-attendance/internal/samples"
	"github.com/kozaktomas/face-attendance/internal/session"
	"github.com/kozaktomas/face-attendance/internal/web/hub"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
	log "github.com/sirupsen/logrus"
)

// Deps are the long-lived components the API operates on.
type Deps struct {
	Samples  *samples.Store
	Detector detector.Detector
	Ledger   ledger.Ledger
	Jobs     *session.Manager
}

// Server represents the web server
type Server struct {
	config     *config.Config
	deps       Deps
	router     *chi.Mux
	httpServer *http.Server
	auth       *middleware.Authenticator
	hub        *hub.Hub
	stopHub    context.CancelFunc
}

// NewServer creates a new web server
func NewServer(cfg *config.Config, deps Deps) *Server {
	r := chi.NewRouter()

	s := &Server{
		config: cfg,
		deps:   deps,
		router: r,
		auth:   middleware.NewAuthenticator(cfg.Web),
		hub:    hub.NewHub(),
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.Web.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port),
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: SSE and WebSocket streams stay open for a session's lifetime.
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// Start starts the event hub and the HTTP server. It blocks until the
// server is shut down.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopHub = cancel
	events := s.deps.Jobs.AddListener()
	go func() {
		s.hub.Run(ctx, events)
		s.deps.Jobs.RemoveListener(events)
	}()

	log.WithField("addr", s.httpServer.Addr).Info("starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops running jobs and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("shutting down web server")

	s.deps.Jobs.StopAll()
	if s.stopHub != nil {
		s.stopHub()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}

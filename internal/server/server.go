// Package server exposes the session engine over HTTP: JSON handlers
// for sessions, messages, projects and permissions, plus a
// server-sent-events stream of every bus event.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/opencode-ai/core/internal/event"
	"github.com/opencode-ai/core/internal/project"
	"github.com/opencode-ai/core/internal/repo"
	"github.com/opencode-ai/core/internal/session"
	"github.com/opencode-ai/core/pkg/types"
)

// Config holds server configuration.
type Config struct {
	Hostname     string
	Port         int
	Directory    string // current worktree
	DataDir      string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration // zero: SSE needs no write deadline
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Hostname:    "127.0.0.1",
		Port:        4096,
		EnableCORS:  true,
		ReadTimeout: 30 * time.Second,
	}
}

// Server is the HTTP server.
type Server struct {
	config   *Config
	router   *chi.Mux
	httpSrv  *http.Server
	sessions *session.Service
	projects *project.Service
	bus      *event.Bus

	// current project for this instance, resolved at startup
	project *types.Project

	// Dispose drains the instance; wired by the command entry point.
	Dispose func(ctx context.Context) error
}

// New creates a Server.
func New(cfg *Config, sessions *session.Service, projects *project.Service, current *types.Project) *Server {
	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		sessions: sessions,
		projects: projects,
		bus:      sessions.Repo().Bus(),
		project:  current,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) repo() *repo.Repository { return s.sessions.Repo() }

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Hostname, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops the HTTP listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the chi router, for tests.
func (s *Server) Router() *chi.Mux { return s.router }

// Package server provides the HTTP API for toolkeeper.
package server

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/hyperjump/toolkeeper/internal/auth"
	"github.com/hyperjump/toolkeeper/internal/config"
	"github.com/hyperjump/toolkeeper/internal/inventory"
	"github.com/hyperjump/toolkeeper/internal/search"
	"github.com/hyperjump/toolkeeper/internal/storage"
)

// Server is the HTTP server for the toolkeeper API.
type Server struct {
	inventory *inventory.Service
	engine    *search.Engine
	auth      *auth.Service
	storage   storage.Storage
	config    *config.Config
	logger    *zap.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	inv *inventory.Service,
	engine *search.Engine,
	authService *auth.Service,
	storage storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		inventory: inv,
		engine:    engine,
		auth:      authService,
		storage:   storage,
		config:    cfg,
		logger:    logger,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.config.Server.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.config.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Length", "Content-Type"},
	}).Handler)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware)

			r.Get("/status", s.handleStatus)
			r.Get("/categories", s.handleListCategories)
			r.Get("/tags", s.handleListTags)

			r.Route("/tools", func(r chi.Router) {
				r.Get("/", s.handleListTools)
				r.Post("/", s.handleCreateTool)
				r.Get("/facets", s.handleFacets)
				r.Post("/search", s.handleSearch)
				r.Post("/from-text", s.handleCreateFromText)
				r.Get("/{id}", s.handleGetTool)
				r.Put("/{id}", s.handleUpdateTool)
				r.Delete("/{id}", s.handleDeleteTool)
			})
		})
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr), zap.Bool("ai_enabled", s.inventory.AIEnabled()))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

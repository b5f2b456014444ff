// Package server provides the HTTP API for Mitsuke.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/aisight/mitsuke/internal/config"
	"github.com/aisight/mitsuke/internal/mode"
	"github.com/aisight/mitsuke/internal/promptstore"
	"github.com/aisight/mitsuke/internal/terms"
	"github.com/aisight/mitsuke/internal/vocab"
)

// Server is the HTTP server for the Mitsuke API. It is the integration
// surface for external collaborators; detection itself runs on the frame
// path, not over HTTP.
type Server struct {
	vocab      *vocab.Manager
	controller *mode.Controller
	store      *promptstore.Store
	extractor  terms.Extractor
	config     *config.Config
	logger     *zap.Logger
	server     *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithExtractor sets the scene-description extractor consulted when an
// add-terms request carries free-form text instead of explicit terms.
func WithExtractor(e terms.Extractor) ServerOption {
	return func(s *Server) { s.extractor = e }
}

// NewServer creates a server with the given dependencies.
func NewServer(
	v *vocab.Manager,
	controller *mode.Controller,
	store *promptstore.Store,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...ServerOption,
) *Server {
	s := &Server{
		vocab:      v,
		controller: controller,
		store:      store,
		config:     cfg,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/api/v1/terms", s.handleAddTerms)
	r.Get("/api/v1/terms", s.handleListTerms)
	r.Post("/api/v1/mode", s.handleSwitchMode)
	r.Get("/api/v1/mode", s.handleGetMode)
	r.Post("/api/v1/memories", s.handleRemember)
	r.Get("/api/v1/memories/{id}", s.handleGetMemory)
	r.Get("/api/v1/memories", s.handleSearchMemories)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Package server exposes the assertion graph over HTTP: import runs,
// entity views, source registration, and workspace management.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/weftdb/weft/internal/engine"
	"github.com/weftdb/weft/internal/ingestspec"
	"github.com/weftdb/weft/internal/lock"
	"github.com/weftdb/weft/internal/schema"
	"github.com/weftdb/weft/internal/storage"
)

// Config carries the server's collaborators.
type Config struct {
	Store   storage.Storage
	Schemas *schema.Registry
	Specs   *ingestspec.Registry
	Locker  lock.Locker
	Engine  *engine.Engine
	Logger  *slog.Logger
	DataDir string
}

// Server handles the weft HTTP API.
type Server struct {
	store   storage.Storage
	schemas *schema.Registry
	specs   *ingestspec.Registry
	locker  lock.Locker
	engine  *engine.Engine
	logger  *slog.Logger
	dataDir string

	router     chi.Router
	httpServer *http.Server
}

// New builds a Server and registers its routes.
func New(cfg Config) *Server {
	s := &Server{
		store:   cfg.Store,
		schemas: cfg.Schemas,
		specs:   cfg.Specs,
		locker:  cfg.Locker,
		engine:  cfg.Engine,
		logger:  cfg.Logger,
		dataDir: cfg.DataDir,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/specs", s.handleListSpecs)

		r.Post("/workspaces", s.handleCreateWorkspace)
		r.Get("/workspaces", s.handleListWorkspaces)

		r.Route("/workspaces/{workspaceID}", func(r chi.Router) {
			r.Post("/imports", s.handleCreateImport)
			r.Get("/imports", s.handleListImports)
			r.Get("/imports/{importRunID}", s.handleGetImport)
			r.Get("/imports/{importRunID}/diff", s.handleImportDiff)

			r.Get("/entities/search", s.handleSearchEntities)
			r.Get("/entities/{entityID}", s.handleGetEntity)

			r.Put("/sources/{sourceName}", s.handlePutSource)
			r.Get("/sources", s.handleListSources)
		})
	})

	s.router = r
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until ctx is cancelled, then drains in-flight
// requests for up to 10 seconds.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	s.logger.Info("http server listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

// Package server exposes a store over HTTP. Plain JSON routes are served by
// a chi router; the query procedure is also available as a Connect unary
// RPC carrying google.protobuf.Struct messages.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tailored-agentic-units/tabula/observability"
	"github.com/tailored-agentic-units/tabula/source"
	"github.com/tailored-agentic-units/tabula/store"
)

// Option configures a Server.
type Option func(*Server)

// WithLister lets GET /datasets report keys the store has not loaded yet.
func WithLister(l source.Lister) Option {
	return func(s *Server) { s.lister = l }
}

// WithObserver sets the observer handed to queries.
func WithObserver(o observability.Observer) Option {
	return func(s *Server) { s.observer = o }
}

// Server serves a store over HTTP.
type Server struct {
	store    *store.Store
	lister   source.Lister
	observer observability.Observer
	cfg      Config
	router   *chi.Mux
	server   *http.Server
}

// New creates a Server for st.
func New(st *store.Store, cfg Config, opts ...Option) *Server {
	s := &Server{
		store:    st,
		observer: observability.NewSlogObserver(slog.Default()),
		cfg:      cfg,
		router:   chi.NewRouter(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(cfg.ReadTimeout),
		WriteTimeout: time.Duration(cfg.WriteTimeout),
		IdleTimeout:  time.Duration(cfg.IdleTimeout),
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		s.router.Use(middleware.Timeout(time.Duration(s.cfg.RequestTimeout)))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Get("/datasets", s.handleListDatasets)
	s.router.Get("/datasets/*", s.handleGetDataset)
	s.router.Get("/errors", s.handleErrors)

	s.router.Post("/load", s.handleLoad)
	s.router.Post("/query", s.handleQuery)

	path, handler := s.connectHandler()
	s.router.Handle(path, handler)
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on cfg.Addr until Shutdown is called.
func (s *Server) ListenAndServe() error {
	slog.Info("starting server", "addr", s.cfg.Addr)
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server within cfg.ShutdownTimeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.ShutdownTimeout))
		defer cancel()
	}
	return s.server.Shutdown(ctx)
}

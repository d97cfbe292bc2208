// Package api serves a read-only HTTP view of a running qrun: slot state,
// ledger history and a live event stream.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/qrun/internal/events"
	"github.com/mattjoyce/qrun/internal/ledger"
	"github.com/mattjoyce/qrun/internal/pool"
)

// SnapshotSource provides the latest pool snapshot. *status.Board implements it.
type SnapshotSource interface {
	Latest() (pool.Snapshot, bool)
}

// RunLister reads the run ledger. *ledger.Ledger implements it.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]ledger.Run, error)
	CountByStatus(ctx context.Context) (map[ledger.Status]int, error)
}

// Config holds API server configuration
type Config struct {
	Listen  string
	Backlog string
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	slots     SnapshotSource
	runs      RunLister
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. runs and hub may be nil, which
// disables /runs and /events.
func New(config Config, slots SnapshotSource, runs RunLister, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		slots:     slots,
		runs:      runs,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start serves until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // /events streams for as long as the client stays
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/slots", s.handleSlots)
	r.Get("/runs", s.handleRuns)
	r.Get("/events", s.handleEvents)

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

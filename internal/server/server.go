// Package server exposes the optional HTTP endpoints: a health check backed by the database and
// a read-only listing of the bot's commands.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/edgard/ohirun/internal/commands"
)

const (
	pingTimeout     = 2 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Pinger checks the database connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves the health endpoints.
type Server struct {
	addr     string
	db       Pinger
	registry *commands.Registry
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a server listening on addr.
func New(addr string, db Pinger, registry *commands.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:     addr,
		db:       db,
		registry: registry,
		logger:   logger.With("component", "http_server"),
		now:      time.Now,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", s.healthHandler())
	router.Get("/commands", s.commandsHandler())
	return router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.addr)
		errChan <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()

		if err := s.db.Ping(ctx); err != nil {
			s.logger.WarnContext(ctx, "Health check failed", "error", err)
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"time":   s.now().Format(time.RFC3339),
		})
	}
}

type commandInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Usage       string `json:"usage"`
}

func (s *Server) commandsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		list := s.registry.List()
		out := make([]commandInfo, 0, len(list))
		for _, c := range list {
			out = append(out, commandInfo{Name: c.Name, Description: c.Description, Usage: commands.Usage(c)})
		}
		s.writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

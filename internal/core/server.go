// Package core provides the API chassis for the agroalerts service. It
// builds a chi router with the cross-cutting middleware (panic recovery,
// request IDs, logging, compression, and metrics) and mounts the health and
// metrics endpoints. Domain handlers attach under /v1 through
// V1RouteRegistrars.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agroalerts/internal/config"
)

// HTTPMetrics records served API requests.
type HTTPMetrics interface {
	HTTPRequest(method string, status int)
}

// Server encapsulates all dependencies of the HTTP API.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   HTTPMetrics

	// MetricsHandler serves GET /metrics. Nil leaves the route unmounted.
	MetricsHandler http.Handler

	// HealthProbes are the dependencies checked by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount domain handlers under /v1. Populated by main.
	V1RouteRegistrars []func(chi.Router)

	router     *chi.Mux
	httpServer *http.Server
}

// NewServer creates a Server with an empty router. Routes are mounted by
// MountRoutes once the caller has filled in the optional dependencies.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ListenAndServe serves on the configured port until ctx is cancelled, then
// drains in-flight requests within the configured shutdown timeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	cfg := s.Config.Server
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.Logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		serverErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown gracefully stops the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.Logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.Logger.Info("server shutdown complete")
	return nil
}

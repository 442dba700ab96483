// Package core provides the HTTP chassis for the entitlements service. It owns
// the chi router, the global middleware chain, the error envelope and the
// operation gate used by product routes. Domain handlers register themselves
// through V1RouteRegistrars so core never imports them.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"profilehub/internal/config"
)

// MetricsCollector records API request telemetry.
type MetricsCollector interface {
	// RecordRequest records request latency and count. endpoint is the
	// matched route pattern, not the raw path.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server holds the dependencies shared by every request.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Metrics       MetricsCollector
	Authenticator Authenticator
	Idempotency   IdempotencyStore

	// HealthProbes are run concurrently by GET /health.
	HealthProbes []HealthProbe
	// V1RouteRegistrars mount domain routes under /v1.
	V1RouteRegistrars []func(chi.Router)
	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler

	router *chi.Mux
}

// NewServer validates the mandatory dependencies and prepares an empty router.
// Callers set optional collaborators and then call MountRoutes.
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

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown runs the closers in order, stopping early if ctx expires.
func (s *Server) Shutdown(ctx context.Context, closers ...func()) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")
	for _, c := range closers {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("shutdown interrupted: %w", err)
		}
		c()
	}
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}

// Package main is the entry point for the entitlements API server.
//
// It loads the configuration, opens the configured stores, wires the
// entitlement core and the HTTP chassis, and serves until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"profilehub/internal/access"
	"profilehub/internal/api/handlers"
	"profilehub/internal/app"
	"profilehub/internal/auth"
	"profilehub/internal/config"
	"profilehub/internal/core"
	"profilehub/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewEnvVarProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("entitlements API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"store_backend", cfg.StoreBackend,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}

	obs, err := app.NewObservability(ctx, cfg, logger)
	if err != nil {
		stores.Close()
		return err
	}

	srv, err := newServer(cfg, stores, obs, logger)
	if err != nil {
		stores.Close()
		return err
	}

	return runHTTPServer(srv, cfg, stores, obs, logger)
}

// newServer wires the services and handlers into a mounted core.Server.
func newServer(cfg *config.Config, stores *app.Stores, obs *app.Observability, logger *slog.Logger) (*core.Server, error) {
	svc := app.NewServices(cfg, stores, logger, obs.ValidatorOptions()...)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = obs.Metrics
	srv.MetricsHandler = obs.Handler
	srv.Authenticator = auth.NewTokenAuthenticator(stores.Identity, logger)
	srv.Idempotency = stores.Idempotency
	srv.HealthProbes = stores.Probes

	priceLevels := make(map[string]types.SubscriptionLevel, len(cfg.Billing.PriceLevels))
	for price, level := range cfg.Billing.PriceLevels {
		priceLevels[price] = types.SubscriptionLevel(level)
	}

	registrars := []interface{ RegisterRoutes(chi.Router) }{
		handlers.NewTierHandler(svc.Catalog),
		handlers.NewAccessHandler(svc.Validator, svc.Registry, srv.Validator, logger),
		handlers.NewUsageHandler(svc.Validator, svc.Budget, svc.Ledger, svc.Catalog, srv.Validator, logger),
		handlers.NewMembershipHandler(svc.Resolver, srv.RequireOperation(svc.Validator, access.OpViewOrganization)),
	}
	if secret := cfg.Billing.StripeWebhookSecret; secret.IsSet() {
		registrars = append(registrars, handlers.NewStripeWebhookHandler(stores.Identity, secret.Unmask(), priceLevels, logger))
	} else {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set; Stripe webhook disabled")
	}
	for _, h := range registrars {
		srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, h.RegisterRoutes)
	}

	srv.MountRoutes()
	return srv, nil
}

// runHTTPServer serves until a shutdown signal or a listener error, then
// drains in-flight requests, flushes buffered metrics and releases the stores.
func runHTTPServer(srv *core.Server, cfg *config.Config, stores *app.Stores, obs *app.Observability, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			obs.Close()
			stores.Close()
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx, append([]func(){obs.Close}, stores.Closers()...)...); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

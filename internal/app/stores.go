// Package app assembles the entitlements service from configuration. Both the
// API server and the operator CLI build their stores and services here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"profilehub/internal/access"
	"profilehub/internal/auth"
	"profilehub/internal/billing"
	"profilehub/internal/config"
	"profilehub/internal/core"
	"profilehub/internal/db"
	"profilehub/internal/types"
)

// IdentityStore resolves tokens and records subscription level changes.
type IdentityStore interface {
	auth.TokenStore
	SetSubscriptionLevel(ctx context.Context, userID, customerID string, level types.SubscriptionLevel) error
	SetSubscriptionLevelByCustomer(ctx context.Context, customerID string, level types.SubscriptionLevel) (string, error)
}

// ExpiringIdempotencyStore is an idempotency store that can purge old keys.
type ExpiringIdempotencyStore interface {
	core.IdempotencyStore
	DeleteExpired(ctx context.Context) (int64, error)
}

// Stores holds the persistence layer for the configured backend.
type Stores struct {
	Backend     string
	Usage       billing.UsageStore
	Membership  access.MembershipStore
	Identity    IdentityStore
	Idempotency ExpiringIdempotencyStore
	// Reports is nil for the memory backend.
	Reports *db.UsageRepository
	Probes  []core.HealthProbe

	closers []func()
}

// Close releases the backend's resources.
func (s *Stores) Close() {
	for _, c := range s.closers {
		c()
	}
}

// Closers returns the release functions, for Server.Shutdown.
func (s *Stores) Closers() []func() {
	return s.closers
}

// OpenStores connects to the backend selected by cfg.StoreBackend.
func OpenStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		return openPostgres(ctx, cfg, logger)
	case config.StoreMemory:
		return openMemory(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stores, error) {
	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	logger.Info("database pool ready", "max_conns", cfg.Database.MaxConns)

	identity := db.NewIdentityRepository(pool)
	usage := db.NewUsageRepository(pool)
	return &Stores{
		Backend:     config.StorePostgres,
		Usage:       usage,
		Membership:  db.NewMembershipRepository(pool),
		Identity:    identity,
		Idempotency: db.NewIdempotencyRepository(pool, cfg.Server.IdempotencyTTL),
		Reports:     usage,
		Probes:      []core.HealthProbe{core.NewProbe("database", identity.Ping)},
		closers:     []func(){pool.Close},
	}, nil
}

func openMemory(cfg *config.Config, logger *slog.Logger) *Stores {
	identity := auth.NewMemoryIdentityStore()
	for token, userID := range cfg.Security.DevTokens {
		identity.AddToken(token, userID)
	}
	logger.Warn("using in-memory stores; state is lost on restart", "dev_tokens", len(cfg.Security.DevTokens))

	return &Stores{
		Backend:     config.StoreMemory,
		Usage:       billing.NewMemoryUsageStore(),
		Membership:  access.NewMemoryMembershipStore(),
		Identity:    identity,
		Idempotency: core.NewMemoryIdempotencyStore(cfg.Server.IdempotencyTTL),
	}
}

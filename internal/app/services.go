package app

import (
	"log/slog"

	"profilehub/internal/access"
	"profilehub/internal/billing"
	"profilehub/internal/config"
)

// Services is the entitlement core wired over a set of stores.
type Services struct {
	Catalog   billing.TierCatalog
	Ledger    *billing.UsageLedger
	Budget    *billing.BudgetGuard
	Resolver  *access.RoleResolver
	Registry  *access.OperationRegistry
	Validator *access.OperationValidator
}

// NewServices builds the core. opts carry the observers and verdict recorder.
func NewServices(cfg *config.Config, stores *Stores, logger *slog.Logger, opts ...access.ValidatorOption) *Services {
	catalog := billing.NewStaticTierCatalog()
	ledger := billing.NewUsageLedger(stores.Usage, cfg.Ledger.Settings())
	budget := billing.NewBudgetGuard(catalog, ledger)
	resolver := access.NewRoleResolver(stores.Membership, cfg.Membership.Settings(), logger)
	registry := access.NewOperationRegistry(access.Pricing{
		AIRun:  cfg.Pricing.AIRun(),
		APIRun: cfg.Pricing.APIRun(),
	})

	opts = append([]access.ValidatorOption{access.WithValidatorLogger(logger)}, opts...)
	return &Services{
		Catalog:   catalog,
		Ledger:    ledger,
		Budget:    budget,
		Resolver:  resolver,
		Registry:  registry,
		Validator: access.NewOperationValidator(registry, catalog, resolver, budget, opts...),
	}
}

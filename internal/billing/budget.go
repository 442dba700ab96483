package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"profilehub/internal/types"
)

// BudgetGuard combines tier limits with the current month's usage to decide
// whether a billable operation is affordable, and records consumption after
// the operation succeeds.
//
// CanAfford followed by RecordUsage is a soft check: two concurrent callers can
// both pass CanAfford and overshoot the cap slightly. Only the increment itself
// is atomic.
type BudgetGuard struct {
	catalog TierCatalog
	ledger  Ledger
	now     func() time.Time
}

// BudgetOption configures a BudgetGuard.
type BudgetOption func(*BudgetGuard)

// WithClock overrides the clock used to pick the current month.
func WithClock(now func() time.Time) BudgetOption {
	return func(g *BudgetGuard) {
		g.now = now
	}
}

// NewBudgetGuard creates a BudgetGuard.
func NewBudgetGuard(catalog TierCatalog, ledger Ledger, opts ...BudgetOption) *BudgetGuard {
	g := &BudgetGuard{
		catalog: catalog,
		ledger:  ledger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CurrentMonth returns the month key that usage is charged against.
func (g *BudgetGuard) CurrentMonth() string {
	return MonthKey(g.now())
}

// CanAfford reports whether userID, subscribed at level, can afford an
// operation costing estimatedCost and consuming one run of kind run.
func (g *BudgetGuard) CanAfford(
	ctx context.Context,
	userID string,
	level types.SubscriptionLevel,
	estimatedCost decimal.Decimal,
	run types.RunKind,
) (types.BudgetStatus, error) {
	if estimatedCost.IsNegative() {
		return types.BudgetStatus{}, types.NewAppError(types.ErrCodeValidationInvalidCost, "estimated cost must not be negative", nil)
	}

	month := g.CurrentMonth()
	usage, err := g.ledger.GetUsage(ctx, userID, month)
	if err != nil {
		return types.BudgetStatus{}, err
	}

	status := CheckBudget(g.catalog.GetTier(level).Limits, usage, estimatedCost, run)
	status.Month = month
	return status, nil
}

// Status returns the current month's usage together with the remaining budget.
func (g *BudgetGuard) Status(ctx context.Context, userID string, level types.SubscriptionLevel) (types.UsageRecord, types.BudgetStatus, error) {
	month := g.CurrentMonth()
	usage, err := g.ledger.GetUsage(ctx, userID, month)
	if err != nil {
		return types.UsageRecord{}, types.BudgetStatus{}, err
	}

	status := CheckBudget(g.catalog.GetTier(level).Limits, usage, decimal.Zero, types.RunNone)
	status.Month = month
	return usage, status, nil
}

// RecordUsage charges delta against the current month. Callers must invoke it
// only after the guarded operation has succeeded.
func (g *BudgetGuard) RecordUsage(ctx context.Context, userID string, delta types.UsageDelta) (types.UsageRecord, error) {
	return g.ledger.RecordUsage(ctx, userID, g.CurrentMonth(), delta)
}

// CheckBudget evaluates limits against usage. Sub-checks run in the fixed order
// cost, AI runs, API runs; the first failure names the reason. Unlimited caps
// always pass.
func CheckBudget(limits types.TierLimits, usage types.UsageRecord, estimatedCost decimal.Decimal, run types.RunKind) types.BudgetStatus {
	status := types.BudgetStatus{
		Allowed:          true,
		Month:            usage.Month,
		RemainingCost:    remainingCost(limits.MaxCost, usage.TotalCost),
		RemainingRunsAI:  remainingRuns(limits.MaxRunsAI, usage.TotalRunsAI),
		RemainingRunsAPI: remainingRuns(limits.MaxRunsAPI, usage.TotalRunsAPI),
	}

	if !limits.MaxCost.Unlimited && usage.TotalCost.Add(estimatedCost).GreaterThan(limits.MaxCost.Amount) {
		status.Allowed = false
		status.Reason = fmt.Sprintf("monthly cost limit exceeded: %s spent, %s requested, limit %s",
			usage.TotalCost.StringFixed(2), estimatedCost.StringFixed(2), limits.MaxCost.Amount.StringFixed(2))
		return status
	}

	if run == types.RunAI && !limits.MaxRunsAI.Unlimited && usage.TotalRunsAI >= limits.MaxRunsAI.Max {
		status.Allowed = false
		status.Reason = fmt.Sprintf("monthly AI run limit reached: %d of %d used", usage.TotalRunsAI, limits.MaxRunsAI.Max)
		return status
	}

	if run == types.RunAPI && !limits.MaxRunsAPI.Unlimited && usage.TotalRunsAPI >= limits.MaxRunsAPI.Max {
		status.Allowed = false
		status.Reason = fmt.Sprintf("monthly API run limit reached: %d of %d used", usage.TotalRunsAPI, limits.MaxRunsAPI.Max)
		return status
	}

	return status
}

func remainingCost(limit types.CostCap, spent decimal.Decimal) types.CostCap {
	if limit.Unlimited {
		return types.UnlimitedCost()
	}
	left := limit.Amount.Sub(spent)
	if left.IsNegative() {
		left = decimal.Zero
	}
	return types.CostCap{Amount: left}
}

func remainingRuns(limit types.RunCap, used int64) types.RunCap {
	if limit.Unlimited {
		return types.UnlimitedRuns()
	}
	left := limit.Max - used
	if left < 0 {
		left = 0
	}
	return types.RunCap{Max: left}
}

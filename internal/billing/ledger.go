package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"profilehub/internal/resilience"
	"profilehub/internal/types"
)

// MonthLayout is the layout of the per-month usage key ("YYYY-MM").
const MonthLayout = "2006-01"

// MonthKey returns the UTC month key for t.
func MonthKey(t time.Time) string {
	return t.UTC().Format(MonthLayout)
}

// UsageStore is the persistence contract behind the ledger.
type UsageStore interface {
	// GetUsage returns the record for (userID, month), or nil when none exists.
	GetUsage(ctx context.Context, userID, month string) (*types.UsageRecord, error)
	// IncrementUsage applies delta atomically and returns the updated record,
	// creating it when missing.
	IncrementUsage(ctx context.Context, userID, month string, delta types.UsageDelta) (*types.UsageRecord, error)
}

// Ledger reads and writes monthly usage counters.
type Ledger interface {
	GetUsage(ctx context.Context, userID, month string) (types.UsageRecord, error)
	RecordUsage(ctx context.Context, userID, month string, delta types.UsageDelta) (types.UsageRecord, error)
}

// UsageLedger is the Ledger backed by a UsageStore. Store failures, timeouts
// and an open breaker all surface as ErrCodeLedgerUnavailable; a missing record
// is never an error.
type UsageLedger struct {
	store UsageStore
	guard *resilience.Guard[*types.UsageRecord]
}

// NewUsageLedger creates a UsageLedger over store.
func NewUsageLedger(store UsageStore, settings resilience.Settings) *UsageLedger {
	return &UsageLedger{
		store: store,
		guard: resilience.NewGuard[*types.UsageRecord]("usage-ledger", types.ErrCodeLedgerUnavailable, settings),
	}
}

// GetUsage returns the usage for the month, or a zero record.
func (l *UsageLedger) GetUsage(ctx context.Context, userID, month string) (types.UsageRecord, error) {
	if err := validateKey(userID, month); err != nil {
		return types.UsageRecord{}, err
	}

	rec, err := l.guard.Do(ctx, func(ctx context.Context) (*types.UsageRecord, error) {
		return l.store.GetUsage(ctx, userID, month)
	})
	if err != nil {
		return types.UsageRecord{}, err
	}
	if rec == nil {
		return zeroRecord(userID, month), nil
	}
	return *rec, nil
}

// RecordUsage adds delta to the month's counters.
func (l *UsageLedger) RecordUsage(ctx context.Context, userID, month string, delta types.UsageDelta) (types.UsageRecord, error) {
	if err := validateKey(userID, month); err != nil {
		return types.UsageRecord{}, err
	}
	if err := types.ValidateUsageCost(delta.Cost); err != nil {
		return types.UsageRecord{}, err
	}

	rec, err := l.guard.Do(ctx, func(ctx context.Context) (*types.UsageRecord, error) {
		return l.store.IncrementUsage(ctx, userID, month, delta)
	})
	if err != nil {
		return types.UsageRecord{}, err
	}
	if rec == nil {
		return types.UsageRecord{}, types.NewAppError(types.ErrCodeLedgerUnavailable, "usage store returned no record", nil)
	}
	return *rec, nil
}

func validateKey(userID, month string) error {
	if userID == "" {
		return types.NewAppError(types.ErrCodeValidationInvalidUser, "user id is required", nil)
	}
	if _, err := time.Parse(MonthLayout, month); err != nil {
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidMonth,
			"month must be formatted as YYYY-MM",
			err,
			map[string]any{"month": month},
		)
	}
	return nil
}

func zeroRecord(userID, month string) types.UsageRecord {
	return types.UsageRecord{
		UserID:    userID,
		Month:     month,
		TotalCost: decimal.Zero,
	}
}

package access

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"profilehub/internal/billing"
	"profilehub/internal/types"
)

// MembershipResolver resolves a user's memberships.
type MembershipResolver interface {
	Resolve(ctx context.Context, userID string) (types.MembershipContext, error)
}

// BudgetChecker answers affordability questions and records charges.
type BudgetChecker interface {
	CanAfford(ctx context.Context, userID string, level types.SubscriptionLevel, estimatedCost decimal.Decimal, run types.RunKind) (types.BudgetStatus, error)
	RecordUsage(ctx context.Context, userID string, delta types.UsageDelta) (types.UsageRecord, error)
}

// UsageObserver is notified after a charge has been recorded. Observer errors
// are logged and never undo the charge.
type UsageObserver interface {
	UsageRecorded(ctx context.Context, event types.UsageEvent) error
}

// VerdictRecorder receives every verdict produced by Validate.
type VerdictRecorder interface {
	RecordVerdict(ctx context.Context, v types.Verdict)
}

// OperationValidator is the single entry point for gated operations. Callers
// run Validate before the action and Charge only after the action succeeded.
type OperationValidator struct {
	ops       *OperationRegistry
	catalog   billing.TierCatalog
	resolver  MembershipResolver
	budget    BudgetChecker
	observers []UsageObserver
	recorder  VerdictRecorder
	logger    *slog.Logger
	now       func() time.Time
}

// ValidatorOption configures an OperationValidator.
type ValidatorOption func(*OperationValidator)

// WithUsageObserver registers an observer for recorded charges.
func WithUsageObserver(o UsageObserver) ValidatorOption {
	return func(v *OperationValidator) {
		v.observers = append(v.observers, o)
	}
}

// WithVerdictRecorder registers the verdict recorder.
func WithVerdictRecorder(r VerdictRecorder) ValidatorOption {
	return func(v *OperationValidator) {
		v.recorder = r
	}
}

// WithValidatorLogger sets the logger.
func WithValidatorLogger(l *slog.Logger) ValidatorOption {
	return func(v *OperationValidator) {
		v.logger = l
	}
}

// NewOperationValidator wires the validator from its collaborators.
func NewOperationValidator(
	ops *OperationRegistry,
	catalog billing.TierCatalog,
	resolver MembershipResolver,
	budget BudgetChecker,
	opts ...ValidatorOption,
) *OperationValidator {
	v := &OperationValidator{
		ops:      ops,
		catalog:  catalog,
		resolver: resolver,
		budget:   budget,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Operations exposes the registry.
func (v *OperationValidator) Operations() *OperationRegistry {
	return v.ops
}

// Validate returns the verdict for subject performing name. Business denials
// are verdicts; a non-nil error means the decision could not be made (for
// example ErrCodeMembershipUnavailable or ErrCodeLedgerUnavailable) and the
// caller must treat it as a denial. Validate never mutates usage.
func (v *OperationValidator) Validate(
	ctx context.Context,
	subject types.Subject,
	name types.OperationName,
	opCtx types.OperationContext,
) (types.Verdict, error) {
	op, ok := v.ops.Lookup(name)
	if !ok {
		verdict := types.Deny(name, types.ReasonUnknownOperation, fmt.Sprintf("unknown operation %q", name))
		v.record(ctx, verdict)
		return verdict, nil
	}
	if subject.UserID == "" {
		return types.Verdict{}, types.NewAppError(types.ErrCodeValidationInvalidUser, "user id is required", nil)
	}

	var (
		membership types.MembershipContext
		tier       types.SubscriptionTier
	)
	g, gCtx := errgroup.WithContext(ctx)
	if op.Scope != types.ScopePersonal {
		g.Go(func() error {
			m, err := v.resolver.Resolve(gCtx, subject.UserID)
			if err != nil {
				return err
			}
			membership = m
			return nil
		})
	}
	g.Go(func() error {
		tier = v.catalog.GetTier(subject.SubscriptionLevel)
		return nil
	})
	if err := g.Wait(); err != nil {
		v.logger.WarnContext(ctx, "access decision unavailable",
			"operation", name,
			"user_id", subject.UserID,
			"error", err,
		)
		return types.Verdict{}, err
	}

	verdict := Evaluate(subject, NewCapabilities(membership), tier, op, opCtx)
	if !verdict.Allowed {
		if verdict.ReasonCode == types.ReasonNoFeature {
			verdict.UpgradeHint = v.upgradeHint(tier.Level)
		}
		v.record(ctx, verdict)
		return verdict, nil
	}

	if op.IsBillable {
		status, err := v.budget.CanAfford(ctx, subject.UserID, tier.Level, op.EstimatedCost, op.ConsumesRun)
		if err != nil {
			v.logger.WarnContext(ctx, "budget check unavailable",
				"operation", name,
				"user_id", subject.UserID,
				"error", err,
			)
			return types.Verdict{}, err
		}
		if !status.Allowed {
			verdict = types.Deny(op.Name, types.ReasonBudgetExceeded, status.Reason)
			verdict.UpgradeHint = v.upgradeHint(tier.Level)
		}
		verdict.Budget = &status
	}

	v.record(ctx, verdict)
	return verdict, nil
}

// Charge records the usage of a billable operation that has completed
// successfully. actualCost overrides the operation's estimated cost when set.
func (v *OperationValidator) Charge(
	ctx context.Context,
	subject types.Subject,
	name types.OperationName,
	actualCost *decimal.Decimal,
) (types.UsageRecord, error) {
	op, ok := v.ops.Lookup(name)
	if !ok {
		return types.UsageRecord{}, types.NewAppError(types.ErrCodeNotFoundOperation, fmt.Sprintf("unknown operation %q", name), nil)
	}
	if !op.IsBillable {
		return types.UsageRecord{}, types.NewAppErrorWithDetails(
			types.ErrCodeValidationFailed,
			"operation is not billable",
			nil,
			map[string]any{"operation": name},
		)
	}

	cost := op.EstimatedCost
	if actualCost != nil {
		cost = *actualCost
	}
	delta := types.UsageDelta{
		Cost:   cost,
		AIRun:  op.ConsumesRun == types.RunAI,
		APIRun: op.ConsumesRun == types.RunAPI,
	}

	rec, err := v.budget.RecordUsage(ctx, subject.UserID, delta)
	if err != nil {
		return types.UsageRecord{}, err
	}

	event := types.UsageEvent{
		UserID:     subject.UserID,
		Operation:  op.Name,
		Month:      rec.Month,
		Cost:       cost,
		RunKind:    op.ConsumesRun,
		Totals:     rec,
		OccurredAt: v.now().UTC(),
	}
	for _, o := range v.observers {
		if err := o.UsageRecorded(ctx, event); err != nil {
			v.logger.ErrorContext(ctx, "usage observer failed",
				"operation", op.Name,
				"user_id", subject.UserID,
				"error", err,
			)
		}
	}
	return rec, nil
}

func (v *OperationValidator) upgradeHint(level types.SubscriptionLevel) *types.SubscriptionLevel {
	next, ok := v.catalog.NextTier(level)
	if !ok {
		return nil
	}
	return &next
}

func (v *OperationValidator) record(ctx context.Context, verdict types.Verdict) {
	if !verdict.Allowed {
		v.logger.DebugContext(ctx, "operation denied",
			"operation", verdict.Operation,
			"reason", verdict.ReasonCode,
		)
	}
	if v.recorder != nil {
		v.recorder.RecordVerdict(ctx, verdict)
	}
}

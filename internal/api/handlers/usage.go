package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"profilehub/internal/core"
	"profilehub/internal/types"
)

// UsageCharger records the cost of a completed billable operation.
type UsageCharger interface {
	Charge(ctx context.Context, subject types.Subject, name types.OperationName, actualCost *decimal.Decimal) (types.UsageRecord, error)
}

// BudgetReporter reports the current month's usage and remaining budget.
type BudgetReporter interface {
	Status(ctx context.Context, userID string, level types.SubscriptionLevel) (types.UsageRecord, types.BudgetStatus, error)
}

// UsageReader reads usage for an arbitrary month.
type UsageReader interface {
	GetUsage(ctx context.Context, userID, month string) (types.UsageRecord, error)
}

// TierLookup returns the tier definition for a level.
type TierLookup interface {
	GetTier(level types.SubscriptionLevel) types.SubscriptionTier
}

// ChargeRequest is the body of POST /v1/usage/charge. Cost overrides the
// operation's estimated cost when present.
type ChargeRequest struct {
	Operation string           `json:"operation" validate:"required,max=64"`
	Cost      *decimal.Decimal `json:"cost,omitempty" validate:"omitempty,usage_cost"`
}

// UsageSummary is returned by GET /v1/usage.
type UsageSummary struct {
	Month  string             `json:"month"`
	Usage  types.UsageRecord  `json:"usage"`
	Limits types.TierLimits   `json:"limits"`
	Budget types.BudgetStatus `json:"budget"`
}

type monthParam struct {
	Month string `json:"month" validate:"required,month"`
}

// UsageHandler charges and reports monthly usage.
type UsageHandler struct {
	charger   UsageCharger
	budget    BudgetReporter
	ledger    UsageReader
	tiers     TierLookup
	validator *core.Validator
	logger    *slog.Logger
}

func NewUsageHandler(
	charger UsageCharger,
	budget BudgetReporter,
	ledger UsageReader,
	tiers TierLookup,
	validator *core.Validator,
	logger *slog.Logger,
) *UsageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UsageHandler{
		charger:   charger,
		budget:    budget,
		ledger:    ledger,
		tiers:     tiers,
		validator: validator,
		logger:    logger,
	}
}

func (h *UsageHandler) RegisterRoutes(r chi.Router) {
	r.Route("/usage", func(r chi.Router) {
		r.Get("/", h.GetCurrent)
		r.Get("/{month}", h.GetMonth)
		r.Post("/charge", h.Charge)
	})
}

// Charge records usage for an operation the caller has already performed.
// Retries should carry an Idempotency-Key header so the charge applies once.
func (h *UsageHandler) Charge(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	var req ChargeRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		if req.Cost != nil {
			if costErr := types.ValidateUsageCost(*req.Cost); costErr != nil {
				err = costErr
			}
		}
		core.Error(w, r, err)
		return
	}

	rec, err := h.charger.Charge(r.Context(), actor.Subject(), types.OperationName(req.Operation), req.Cost)
	if err != nil {
		if types.IsUnavailable(err) {
			h.logger.ErrorContext(r.Context(), "charge not recorded",
				"operation", req.Operation,
				"user_id", actor.ID,
				"error", err,
			)
		}
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "usage charged",
		"operation", req.Operation,
		"user_id", actor.ID,
		"month", rec.Month,
		"total_cost", rec.TotalCost.String(),
	)
	core.Data(w, r, http.StatusCreated, rec)
}

// GetCurrent returns the current month's usage, the actor's limits and the
// remaining budget.
func (h *UsageHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	usage, status, err := h.budget.Status(r.Context(), actor.ID, actor.SubscriptionLevel)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, UsageSummary{
		Month:  status.Month,
		Usage:  usage,
		Limits: h.tiers.GetTier(actor.SubscriptionLevel).Limits,
		Budget: status,
	})
}

// GetMonth returns the usage record for a past or current month.
func (h *UsageHandler) GetMonth(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	param := monthParam{Month: chi.URLParam(r, "month")}
	if err := h.validator.ValidateStruct(param); err != nil {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidMonth, "month must be formatted as YYYY-MM", nil,
			map[string]any{"month": param.Month}))
		return
	}

	rec, err := h.ledger.GetUsage(r.Context(), actor.ID, param.Month)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.Data(w, r, http.StatusOK, rec)
}

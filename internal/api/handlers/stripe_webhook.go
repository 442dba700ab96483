package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"profilehub/internal/core"
	"profilehub/internal/types"
)

// maxWebhookBodySize caps a Stripe webhook payload at 64 KB.
const maxWebhookBodySize = 64 * 1024

// SubscriptionLevelWriter persists subscription level changes coming from
// billing.
type SubscriptionLevelWriter interface {
	SetSubscriptionLevel(ctx context.Context, userID, customerID string, level types.SubscriptionLevel) error
	SetSubscriptionLevelByCustomer(ctx context.Context, customerID string, level types.SubscriptionLevel) (string, error)
}

// StripeWebhookHandler keeps subscription levels in sync with Stripe. It is
// public; requests are authenticated by the Stripe-Signature header.
type StripeWebhookHandler struct {
	writer      SubscriptionLevelWriter
	secret      string
	priceLevels map[string]types.SubscriptionLevel
	logger      *slog.Logger
}

// NewStripeWebhookHandler creates the handler. priceLevels maps Stripe price
// IDs to subscription levels.
func NewStripeWebhookHandler(
	writer SubscriptionLevelWriter,
	secret string,
	priceLevels map[string]types.SubscriptionLevel,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		writer:      writer,
		secret:      secret,
		priceLevels: priceLevels,
		logger:      logger,
	}
}

func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle verifies and applies a subscription event. Events that do not
// concern subscriptions, or that name an unknown user, are acknowledged with
// 200 so Stripe stops retrying. Storage failures return 500 so it retries.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "failed to read request body", err))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(r.Context(), "missing Stripe-Signature header")
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "missing Stripe-Signature header", nil))
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "webhook signature verification failed", err))
		return
	}

	log := h.logger.With("event_id", event.ID, "event_type", string(event.Type))

	switch event.Type {
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
	default:
		log.DebugContext(r.Context(), "ignoring webhook event")
		writeAck(w, r)
		return
	}

	var sub stripe.Subscription
	if event.Data == nil || json.Unmarshal(event.Data.Raw, &sub) != nil {
		log.WarnContext(r.Context(), "malformed subscription payload")
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed subscription payload", nil))
		return
	}

	level := h.levelFor(&sub, event.Type == stripe.EventTypeCustomerSubscriptionDeleted)
	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	userID := sub.Metadata["user_id"]

	switch {
	case userID != "":
		err = h.writer.SetSubscriptionLevel(r.Context(), userID, customerID, level)
	case customerID != "":
		userID, err = h.writer.SetSubscriptionLevelByCustomer(r.Context(), customerID, level)
	default:
		log.WarnContext(r.Context(), "subscription event names neither user nor customer")
		writeAck(w, r)
		return
	}

	if err != nil {
		if types.HasCode(err, types.ErrCodeNotFoundUser) {
			log.WarnContext(r.Context(), "subscription event for unknown user",
				"user_id", userID,
				"customer_id", customerID,
			)
			writeAck(w, r)
			return
		}
		log.ErrorContext(r.Context(), "failed to apply subscription level", "error", err)
		core.Error(w, r, err)
		return
	}

	log.InfoContext(r.Context(), "subscription level updated",
		"user_id", userID,
		"customer_id", customerID,
		"level", string(level),
		"status", string(sub.Status),
	)
	writeAck(w, r)
}

// levelFor maps a subscription to the level it grants. Only active,
// trialing and past_due subscriptions grant their price's level; anything
// else, including unknown prices, falls back to free.
func (h *StripeWebhookHandler) levelFor(sub *stripe.Subscription, deleted bool) types.SubscriptionLevel {
	if deleted {
		return types.LevelFree
	}
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing, stripe.SubscriptionStatusPastDue:
	default:
		return types.LevelFree
	}

	best := types.LevelFree
	if sub.Items == nil {
		return best
	}
	for _, item := range sub.Items.Data {
		if item == nil || item.Price == nil {
			continue
		}
		if lvl, ok := h.priceLevels[item.Price.ID]; ok && lvl.Rank() > best.Rank() {
			best = lvl
		}
	}
	return best
}

func writeAck(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, map[string]bool{"received": true})
}

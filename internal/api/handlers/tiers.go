package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"profilehub/internal/core"
	"profilehub/internal/types"
)

// TierLister exposes the subscription tier catalog.
type TierLister interface {
	TierLookup
	Tiers() []types.SubscriptionTier
}

// TierHandler serves the read-only plan catalog.
type TierHandler struct {
	catalog TierLister
}

func NewTierHandler(catalog TierLister) *TierHandler {
	return &TierHandler{catalog: catalog}
}

func (h *TierHandler) RegisterRoutes(r chi.Router) {
	r.Get("/tiers", h.List)
	r.Get("/tiers/{level}", h.Get)
}

// List returns every tier from lowest to highest.
func (h *TierHandler) List(w http.ResponseWriter, r *http.Request) {
	core.Data(w, r, http.StatusOK, h.catalog.Tiers())
}

// Get returns a single tier. Unlike the catalog, which falls back to free for
// unknown levels, the API reports them as not found.
func (h *TierHandler) Get(w http.ResponseWriter, r *http.Request) {
	level := types.SubscriptionLevel(chi.URLParam(r, "level"))
	if !level.IsValid() {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationFailed, "unknown subscription level", nil,
			map[string]any{"level": string(level)}))
		return
	}
	core.Data(w, r, http.StatusOK, h.catalog.GetTier(level))
}

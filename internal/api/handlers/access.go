// Package handlers contains the HTTP handlers of the entitlements API. Each
// handler declares the narrow service interface it needs and registers its
// own routes on a chi.Router.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"profilehub/internal/core"
	"profilehub/internal/types"
)

// AccessChecker produces verdicts for gated operations.
type AccessChecker interface {
	Validate(ctx context.Context, subject types.Subject, name types.OperationName, opCtx types.OperationContext) (types.Verdict, error)
}

// OperationLister lists the registered operations.
type OperationLister interface {
	List() []types.OperationDescriptor
}

// CheckAccessRequest is the body of POST /v1/access/check.
type CheckAccessRequest struct {
	Operation    string `json:"operation" validate:"required,max=64"`
	TeamID       string `json:"team_id,omitempty" validate:"omitempty,max=128"`
	TargetUserID string `json:"target_user_id,omitempty" validate:"omitempty,max=128"`
	NewRole      string `json:"new_role,omitempty" validate:"omitempty,team_role"`
}

// AccessHandler answers access questions for the authenticated actor.
type AccessHandler struct {
	checker   AccessChecker
	ops       OperationLister
	validator *core.Validator
	logger    *slog.Logger
}

func NewAccessHandler(checker AccessChecker, ops OperationLister, validator *core.Validator, logger *slog.Logger) *AccessHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessHandler{checker: checker, ops: ops, validator: validator, logger: logger}
}

func (h *AccessHandler) RegisterRoutes(r chi.Router) {
	r.Post("/access/check", h.Check)
	r.Get("/operations", h.ListOperations)
}

// Check returns the verdict for the requested operation. Both allowed and
// denied verdicts are 200; the caller inspects "allowed". A collaborator
// outage is 503 and must be treated as a denial.
func (h *AccessHandler) Check(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	var req CheckAccessRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	verdict, err := h.checker.Validate(r.Context(), actor.Subject(), types.OperationName(req.Operation), types.OperationContext{
		TeamID:       req.TeamID,
		TargetUserID: req.TargetUserID,
		NewRole:      types.TeamRole(req.NewRole),
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "access check could not be decided",
			"operation", req.Operation,
			"user_id", actor.ID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, verdict)
}

// ListOperations returns the operation registry.
func (h *AccessHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	core.Data(w, r, http.StatusOK, h.ops.List())
}

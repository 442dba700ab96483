package core

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"profilehub/internal/types"
)

// OperationGate decides whether a subject may perform an operation.
type OperationGate interface {
	Validate(ctx context.Context, subject types.Subject, name types.OperationName, opCtx types.OperationContext) (types.Verdict, error)
}

// RequireOperation guards a product route with the named operation. The
// operation context is read from the {teamID} route parameter or the team_id,
// target_user_id and new_role query parameters.
//
// A denial is 403 permission_operation_denied carrying the verdict in details.
// When the decision cannot be made the collaborator error is written as is,
// which is 503 for unavailable stores. The request never proceeds in either
// case.
func (s *Server) RequireOperation(gate OperationGate, op types.OperationName) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := types.GetActor(r.Context())
			if !ok {
				s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Authentication required")
				return
			}

			verdict, err := gate.Validate(r.Context(), actor.Subject(), op, OperationContextFromRequest(r))
			if err != nil {
				s.Logger.WarnContext(r.Context(), "operation check failed",
					slog.String("operation", string(op)),
					slog.String("user_id", actor.ID),
					slog.String("error", err.Error()),
				)
				Error(w, r, err)
				return
			}
			if !verdict.Allowed {
				Error(w, r, DeniedError(verdict))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// OperationContextFromRequest builds the operation context of a gated route.
func OperationContextFromRequest(r *http.Request) types.OperationContext {
	q := r.URL.Query()
	teamID := chi.URLParam(r, "teamID")
	if teamID == "" {
		teamID = q.Get("team_id")
	}
	return types.OperationContext{
		TeamID:       teamID,
		TargetUserID: q.Get("target_user_id"),
		NewRole:      types.TeamRole(q.Get("new_role")),
	}
}

// DeniedError converts a denial verdict into a 403 AppError.
func DeniedError(v types.Verdict) *types.AppError {
	details := map[string]any{
		"operation":   v.Operation,
		"reason_code": v.ReasonCode,
	}
	if v.UpgradeHint != nil {
		details["upgrade_hint"] = *v.UpgradeHint
	}
	if v.Budget != nil {
		details["budget"] = v.Budget
	}
	return types.NewAppErrorWithDetails(types.ErrCodePermissionDenied, v.Message, nil, details)
}

package handlers

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"profilehub/internal/access"
	"profilehub/internal/core"
	"profilehub/internal/types"
)

// MembershipSource resolves the memberships of a user.
type MembershipSource interface {
	Resolve(ctx context.Context, userID string) (types.MembershipContext, error)
}

// TeamView is one team in the membership response, with the effective
// permissions the member holds there.
type TeamView struct {
	TeamID      string                 `json:"team_id"`
	Role        types.TeamRole         `json:"role"`
	Permissions []types.TeamPermission `json:"permissions"`
}

// MembershipView is returned by GET /v1/organization/membership.
type MembershipView struct {
	UserID           string        `json:"user_id"`
	OrganizationID   string        `json:"organization_id"`
	OrganizationRole types.OrgRole `json:"organization_role"`
	Teams            []TeamView    `json:"teams"`
}

// MembershipHandler shows the caller's organization and teams. The route is
// gated by VIEW_ORGANIZATION, so only organization members reach it.
type MembershipHandler struct {
	resolver MembershipSource
	gate     func(http.Handler) http.Handler
}

// NewMembershipHandler builds the handler. gate wraps the route, typically
// Server.RequireOperation(validator, access.OpViewOrganization).
func NewMembershipHandler(resolver MembershipSource, gate func(http.Handler) http.Handler) *MembershipHandler {
	return &MembershipHandler{resolver: resolver, gate: gate}
}

func (h *MembershipHandler) RegisterRoutes(r chi.Router) {
	r.Route("/organization", func(r chi.Router) {
		if h.gate != nil {
			r.Use(h.gate)
		}
		r.Get("/membership", h.Get)
	})
}

func (h *MembershipHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	m, err := h.resolver.Resolve(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusOK, buildMembershipView(m))
}

func buildMembershipView(m types.MembershipContext) MembershipView {
	caps := access.NewCapabilities(m)
	view := MembershipView{
		UserID:           m.UserID,
		OrganizationID:   m.OrganizationID,
		OrganizationRole: m.OrganizationRole,
		Teams:            make([]TeamView, 0, len(m.Teams)),
	}
	for teamID, tm := range m.Teams {
		perms := caps.Permissions(teamID)
		if perms == nil {
			perms = []types.TeamPermission{}
		}
		view.Teams = append(view.Teams, TeamView{TeamID: teamID, Role: tm.Role, Permissions: perms})
	}
	sort.Slice(view.Teams, func(i, j int) bool { return view.Teams[i].TeamID < view.Teams[j].TeamID })
	return view
}

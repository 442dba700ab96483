package access

import (
	"context"
	"log/slog"
	"strings"

	"profilehub/internal/resilience"
	"profilehub/internal/types"
)

// MembershipStore reads raw membership records.
type MembershipStore interface {
	// GetMembership returns the user's membership record, or nil when the user
	// belongs to no organization.
	GetMembership(ctx context.Context, userID string) (*types.MembershipRecord, error)
}

// RoleResolver turns raw membership records into validated MembershipContexts.
type RoleResolver struct {
	store  MembershipStore
	guard  *resilience.Guard[*types.MembershipRecord]
	logger *slog.Logger
}

// NewRoleResolver creates a RoleResolver over store.
func NewRoleResolver(store MembershipStore, settings resilience.Settings, logger *slog.Logger) *RoleResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleResolver{
		store:  store,
		guard:  resilience.NewGuard[*types.MembershipRecord]("membership-store", types.ErrCodeMembershipUnavailable, settings),
		logger: logger,
	}
}

// Resolve returns the user's membership context. An unaffiliated user yields
// an empty context. Store failures are returned as ErrCodeMembershipUnavailable.
func (r *RoleResolver) Resolve(ctx context.Context, userID string) (types.MembershipContext, error) {
	if userID == "" {
		return types.MembershipContext{}, types.NewAppError(types.ErrCodeValidationInvalidUser, "user id is required", nil)
	}

	rec, err := r.guard.Do(ctx, func(ctx context.Context) (*types.MembershipRecord, error) {
		return r.store.GetMembership(ctx, userID)
	})
	if err != nil {
		return types.MembershipContext{}, err
	}
	return r.normalize(ctx, userID, rec), nil
}

// normalize validates a raw record. Corrupt roles degrade to the least
// privileged role, unknown permissions are dropped, and team rows that do not
// belong to the user's organization are discarded.
func (r *RoleResolver) normalize(ctx context.Context, userID string, rec *types.MembershipRecord) types.MembershipContext {
	mc := types.MembershipContext{
		UserID: userID,
		Teams:  make(map[string]types.TeamMembership),
	}
	if rec == nil || strings.TrimSpace(rec.OrganizationID) == "" {
		return mc
	}

	mc.OrganizationID = strings.TrimSpace(rec.OrganizationID)
	mc.OrganizationRole = types.OrgRole(canonical(rec.OrganizationRole))
	if !mc.OrganizationRole.IsValid() {
		r.logger.WarnContext(ctx, "corrupt organization role, treating as member",
			"user_id", userID,
			"org_id", mc.OrganizationID,
			"role", rec.OrganizationRole,
		)
		mc.OrganizationRole = types.OrgRoleMember
	}

	for _, row := range rec.Teams {
		teamID := strings.TrimSpace(row.TeamID)
		if teamID == "" {
			continue
		}
		if strings.TrimSpace(row.OrganizationID) != mc.OrganizationID {
			r.logger.WarnContext(ctx, "dropping team membership outside the user's organization",
				"user_id", userID,
				"team_id", teamID,
				"team_org_id", row.OrganizationID,
			)
			continue
		}
		if _, dup := mc.Teams[teamID]; dup {
			r.logger.WarnContext(ctx, "duplicate team membership ignored", "user_id", userID, "team_id", teamID)
			continue
		}

		role := types.TeamRole(canonical(row.Role))
		if !role.IsValid() {
			r.logger.WarnContext(ctx, "corrupt team role, treating as employee",
				"user_id", userID,
				"team_id", teamID,
				"role", row.Role,
			)
			role = types.TeamRoleEmployee
		}

		perms := make(types.PermissionSet)
		for name, granted := range row.Permissions {
			p := types.TeamPermission(name)
			if !granted || !p.IsValid() {
				continue
			}
			perms[p] = struct{}{}
		}

		mc.Teams[teamID] = types.TeamMembership{
			TeamID:      teamID,
			Role:        role,
			Permissions: perms,
		}
	}
	return mc
}

func canonical(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

package access

import (
	"fmt"

	"profilehub/internal/types"
)

// Evaluate decides whether subject may perform op given their capabilities and
// tier. It checks, in order: the tier feature, the operation context, the team
// role (or an explicit override), the self role-change guard, and finally the
// organization scope. Budget is not considered here.
func Evaluate(
	subject types.Subject,
	caps Capabilities,
	tier types.SubscriptionTier,
	op types.OperationDescriptor,
	opCtx types.OperationContext,
) types.Verdict {
	if op.RequiredFeature != "" && !tier.Features.Has(op.RequiredFeature) {
		return types.Deny(op.Name, types.ReasonNoFeature,
			fmt.Sprintf("%s requires the %s feature, which is not included in the %s plan", op.Name, op.RequiredFeature, tier.Level))
	}

	if op.MutatesMemberRole {
		if opCtx.TargetUserID == "" {
			return types.Deny(op.Name, types.ReasonInvalidContext, "target_user_id is required")
		}
		if !opCtx.NewRole.IsValid() {
			return types.Deny(op.Name, types.ReasonInvalidContext, fmt.Sprintf("new_role %q is not a team role", opCtx.NewRole))
		}
	}

	if op.TeamScoped() {
		if opCtx.TeamID == "" {
			return types.Deny(op.Name, types.ReasonNotInTeam, "team_id is required for team operations")
		}
		role, ok := caps.TeamRole(opCtx.TeamID)
		if !ok {
			return types.Deny(op.Name, types.ReasonNotInTeam, "user is not a member of the team")
		}

		byRole := caps.HasTeamRole(opCtx.TeamID, op.RequiredTeamRoles...)
		byOverride := op.OverridePermission != "" && caps.Can(opCtx.TeamID, op.OverridePermission)
		if !byRole && !byOverride {
			return types.Deny(op.Name, types.ReasonInsufficientRole,
				fmt.Sprintf("team role %s is not allowed to perform %s", role, op.Name))
		}

		if op.MutatesMemberRole && opCtx.TargetUserID == subject.UserID {
			if v, denied := selfRoleChange(op.Name, role, opCtx.NewRole); denied {
				return v
			}
		}
	}

	if op.Scope == types.ScopeOrganization {
		if !caps.InOrganization() {
			return types.Deny(op.Name, types.ReasonNotInOrg, "user does not belong to an organization")
		}
		if len(op.RequiredOrgRoles) > 0 && !caps.HasOrgRole(op.RequiredOrgRoles...) {
			return types.Deny(op.Name, types.ReasonInsufficientRole,
				fmt.Sprintf("organization role does not allow %s", op.Name))
		}
	}

	return types.Allow(op.Name)
}

// selfRoleChange guards a caller changing their own team role. A manager may
// not step down without first handing management to someone else, and
// nobody may raise their own role.
func selfRoleChange(op types.OperationName, current, next types.TeamRole) (types.Verdict, bool) {
	switch {
	case current == types.TeamRoleManager && next != types.TeamRoleManager:
		return types.Deny(op, types.ReasonInsufficientRole,
			"a manager cannot demote themselves; transfer management to another member first"), true
	case current != types.TeamRoleManager && next != current:
		return types.Deny(op, types.ReasonInsufficientRole, "members cannot change their own team role"), true
	}
	return types.Verdict{}, false
}

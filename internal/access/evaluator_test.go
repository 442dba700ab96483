package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profilehub/internal/billing"
	"profilehub/internal/types"
)

var (
	testCatalog  = billing.NewStaticTierCatalog()
	testRegistry = NewOperationRegistry(DefaultPricing())
)

func mustOp(t *testing.T, name types.OperationName) types.OperationDescriptor {
	t.Helper()
	op, ok := testRegistry.Lookup(name)
	require.True(t, ok, "operation %s not registered", name)
	return op
}

func subject(level types.SubscriptionLevel) types.Subject {
	return types.Subject{UserID: "user_1", SubscriptionLevel: level}
}

func TestEvaluate_NoFeature(t *testing.T) {
	v := Evaluate(subject(types.LevelFree), NewCapabilities(membership("", "")),
		testCatalog.GetTier(types.LevelFree), mustOp(t, OpRunAIGrouping), types.OperationContext{})

	assert.False(t, v.Allowed)
	assert.Equal(t, types.ReasonNoFeature, v.ReasonCode)
	assert.Equal(t, OpRunAIGrouping, v.Operation)
}

func TestEvaluate_PersonalOperationAllowed(t *testing.T) {
	v := Evaluate(subject(types.LevelFree), NewCapabilities(membership("", "")),
		testCatalog.GetTier(types.LevelFree), mustOp(t, OpCreateGroup), types.OperationContext{})

	assert.True(t, v.Allowed)
	assert.Equal(t, types.ReasonOK, v.ReasonCode)
}

// Without an organization every organization-scoped operation that has no
// feature gate is denied NOT_IN_ORG, whatever the tier.
func TestEvaluate_NoOrganizationIsNotInOrg(t *testing.T) {
	caps := NewCapabilities(membership("", ""))
	for _, level := range types.LevelLadder {
		for _, op := range testRegistry.List() {
			if op.Scope != types.ScopeOrganization || op.RequiredFeature != "" {
				continue
			}
			v := Evaluate(subject(level), caps, testCatalog.GetTier(level), op, types.OperationContext{})
			assert.Equal(t, types.ReasonNotInOrg, v.ReasonCode, "level=%s op=%s", level, op.Name)
			assert.False(t, v.Allowed)
		}
	}
}

func TestEvaluate_OrganizationRoles(t *testing.T) {
	tier := testCatalog.GetTier(types.LevelBusiness)
	op := mustOp(t, OpCreateTeam)

	member := Evaluate(subject(types.LevelBusiness), NewCapabilities(membership("org_1", types.OrgRoleMember)), tier, op, types.OperationContext{})
	assert.Equal(t, types.ReasonInsufficientRole, member.ReasonCode)

	admin := Evaluate(subject(types.LevelBusiness), NewCapabilities(membership("org_1", types.OrgRoleAdmin)), tier, op, types.OperationContext{})
	assert.True(t, admin.Allowed)

	view := Evaluate(subject(types.LevelFree), NewCapabilities(membership("org_1", types.OrgRoleMember)),
		testCatalog.GetTier(types.LevelFree), mustOp(t, OpViewOrganization), types.OperationContext{})
	assert.True(t, view.Allowed)
}

func TestEvaluate_TeamChecks(t *testing.T) {
	tier := testCatalog.GetTier(types.LevelBusiness)
	caps := NewCapabilities(membership("org_1", types.OrgRoleMember,
		team("t_emp", types.TeamRoleEmployee),
		team("t_emp_invite", types.TeamRoleEmployee, types.PermInviteMembers),
		team("t_lead", types.TeamRoleLead),
	))

	tests := []struct {
		name   string
		op     types.OperationName
		teamID string
		want   types.ReasonCode
	}{
		{"missing team id", OpViewTeamContacts, "", types.ReasonNotInTeam},
		{"not a member", OpViewTeamContacts, "t_other", types.ReasonNotInTeam},
		{"employee may view", OpViewTeamContacts, "t_emp", types.ReasonOK},
		{"employee may not invite", OpInviteTeamMember, "t_emp", types.ReasonInsufficientRole},
		{"override grants invite", OpInviteTeamMember, "t_emp_invite", types.ReasonOK},
		{"lead may invite", OpInviteTeamMember, "t_lead", types.ReasonOK},
		{"lead may not remove", OpRemoveTeamMember, "t_lead", types.ReasonInsufficientRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(subject(types.LevelBusiness), caps, tier, mustOp(t, tt.op), types.OperationContext{TeamID: tt.teamID})
			assert.Equal(t, tt.want, v.ReasonCode, v.Message)
			assert.Equal(t, tt.want == types.ReasonOK, v.Allowed)
		})
	}
}

func TestEvaluate_FeatureCheckedBeforeTeam(t *testing.T) {
	caps := NewCapabilities(membership("org_1", types.OrgRoleMember, team("t_1", types.TeamRoleManager)))
	v := Evaluate(subject(types.LevelBusiness), caps, testCatalog.GetTier(types.LevelBusiness),
		mustOp(t, OpExportTeamContacts), types.OperationContext{TeamID: "t_1"})

	assert.Equal(t, types.ReasonNoFeature, v.ReasonCode)
}

func TestEvaluate_UpdateMemberRole(t *testing.T) {
	tier := testCatalog.GetTier(types.LevelEnterprise)
	op := mustOp(t, OpUpdateMemberRole)
	caps := NewCapabilities(membership("org_1", types.OrgRoleMember,
		team("t_mgr", types.TeamRoleManager),
		team("t_emp", types.TeamRoleEmployee),
		team("t_emp_override", types.TeamRoleEmployee, types.PermUpdateMemberRoles),
	))

	tests := []struct {
		name  string
		opCtx types.OperationContext
		want  types.ReasonCode
	}{
		{"manager changes another member", types.OperationContext{TeamID: "t_mgr", TargetUserID: "user_2", NewRole: types.TeamRoleLead}, types.ReasonOK},
		{"manager demotes self to lead", types.OperationContext{TeamID: "t_mgr", TargetUserID: "user_1", NewRole: types.TeamRoleLead}, types.ReasonInsufficientRole},
		{"manager demotes self to employee", types.OperationContext{TeamID: "t_mgr", TargetUserID: "user_1", NewRole: types.TeamRoleEmployee}, types.ReasonInsufficientRole},
		{"manager keeps own role", types.OperationContext{TeamID: "t_mgr", TargetUserID: "user_1", NewRole: types.TeamRoleManager}, types.ReasonOK},
		{"employee without override", types.OperationContext{TeamID: "t_emp", TargetUserID: "user_2", NewRole: types.TeamRoleLead}, types.ReasonInsufficientRole},
		{"employee with override", types.OperationContext{TeamID: "t_emp_override", TargetUserID: "user_2", NewRole: types.TeamRoleLead}, types.ReasonOK},
		{"override cannot promote self", types.OperationContext{TeamID: "t_emp_override", TargetUserID: "user_1", NewRole: types.TeamRoleManager}, types.ReasonInsufficientRole},
		{"missing target", types.OperationContext{TeamID: "t_mgr", NewRole: types.TeamRoleLead}, types.ReasonInvalidContext},
		{"invalid new role", types.OperationContext{TeamID: "t_mgr", TargetUserID: "user_2", NewRole: "owner"}, types.ReasonInvalidContext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Evaluate(subject(types.LevelEnterprise), caps, tier, op, tt.opCtx)
			assert.Equal(t, tt.want, v.ReasonCode, v.Message)
		})
	}
}

// A manager who also holds the explicit update permission still cannot
// demote themselves.
func TestEvaluate_SelfDemotionIgnoresOverride(t *testing.T) {
	caps := NewCapabilities(membership("org_1", types.OrgRoleOwner,
		team("t_1", types.TeamRoleManager, types.PermUpdateMemberRoles),
	))
	v := Evaluate(subject(types.LevelEnterprise), caps, testCatalog.GetTier(types.LevelEnterprise),
		mustOp(t, OpUpdateMemberRole),
		types.OperationContext{TeamID: "t_1", TargetUserID: "user_1", NewRole: types.TeamRoleEmployee})

	assert.False(t, v.Allowed)
	assert.Equal(t, types.ReasonInsufficientRole, v.ReasonCode)
	assert.Contains(t, v.Message, "transfer management")
}

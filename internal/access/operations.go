// Package access decides whether a user may perform a gated operation. It
// resolves memberships into capabilities, evaluates tier features and team or
// organization roles, and consults the budget guard for billable operations.
package access

import (
	"sort"

	"github.com/shopspring/decimal"

	"profilehub/internal/types"
)

// Gated operations.
const (
	OpCreateGroup           types.OperationName = "CREATE_GROUP"
	OpCreateAdvancedGroup   types.OperationName = "CREATE_ADVANCED_GROUP"
	OpRunAIGrouping         types.OperationName = "RUN_AI_GROUPING"
	OpScanBusinessCard      types.OperationName = "SCAN_BUSINESS_CARD"
	OpEnrichContact         types.OperationName = "ENRICH_CONTACT"
	OpExportContacts        types.OperationName = "EXPORT_CONTACTS"
	OpConfigureCustomDomain types.OperationName = "CONFIGURE_CUSTOM_DOMAIN"
	OpViewAdvancedAnalytics types.OperationName = "VIEW_ADVANCED_ANALYTICS"
	OpViewOrganization      types.OperationName = "VIEW_ORGANIZATION"
	OpManageOrganization    types.OperationName = "MANAGE_ORGANIZATION"
	OpCreateTeam            types.OperationName = "CREATE_TEAM"
	OpShareContactsWithTeam types.OperationName = "SHARE_CONTACTS_WITH_TEAM"
	OpViewTeamContacts      types.OperationName = "VIEW_TEAM_CONTACTS"
	OpExportTeamContacts    types.OperationName = "EXPORT_TEAM_CONTACTS"
	OpInviteTeamMember      types.OperationName = "INVITE_TEAM_MEMBER"
	OpRemoveTeamMember      types.OperationName = "REMOVE_TEAM_MEMBER"
	OpUpdateMemberRole      types.OperationName = "UPDATE_MEMBER_ROLE"
)

// Pricing holds the per-run prices charged for billable operations.
type Pricing struct {
	AIRun  decimal.Decimal
	APIRun decimal.Decimal
}

// DefaultPricing returns the built-in run prices.
func DefaultPricing() Pricing {
	return Pricing{
		AIRun:  decimal.RequireFromString("0.05"),
		APIRun: decimal.RequireFromString("0.02"),
	}
}

var (
	allTeamRoles      = []types.TeamRole{types.TeamRoleManager, types.TeamRoleLead, types.TeamRoleEmployee}
	leadTeamRoles     = []types.TeamRole{types.TeamRoleManager, types.TeamRoleLead}
	managerTeamRoles  = []types.TeamRole{types.TeamRoleManager}
	orgAdministrators = []types.OrgRole{types.OrgRoleOwner, types.OrgRoleAdmin}
)

// OperationRegistry is the read-only catalog of gated operations.
type OperationRegistry struct {
	ops map[types.OperationName]types.OperationDescriptor
}

// NewOperationRegistry builds the registry with the given prices.
func NewOperationRegistry(p Pricing) *OperationRegistry {
	descriptors := []types.OperationDescriptor{
		{
			Name:            OpCreateGroup,
			Description:     "Create a contact group",
			RequiredFeature: types.FeatureBasicGroups,
			Scope:           types.ScopePersonal,
		},
		{
			Name:            OpCreateAdvancedGroup,
			Description:     "Create a rule-based contact group",
			RequiredFeature: types.FeatureAdvancedGroups,
			Scope:           types.ScopePersonal,
		},
		{
			Name:            OpRunAIGrouping,
			Description:     "Group contacts with the AI assistant",
			RequiredFeature: types.FeatureAIGrouping,
			Scope:           types.ScopePersonal,
			IsBillable:      true,
			EstimatedCost:   p.AIRun,
			ConsumesRun:     types.RunAI,
		},
		{
			Name:            OpScanBusinessCard,
			Description:     "Extract a contact from a business card photo",
			RequiredFeature: types.FeatureBusinessCardScan,
			Scope:           types.ScopePersonal,
			IsBillable:      true,
			EstimatedCost:   p.AIRun,
			ConsumesRun:     types.RunAI,
		},
		{
			Name:            OpEnrichContact,
			Description:     "Enrich a contact from third-party data providers",
			RequiredFeature: types.FeatureContactEnrichment,
			Scope:           types.ScopePersonal,
			IsBillable:      true,
			EstimatedCost:   p.APIRun,
			ConsumesRun:     types.RunAPI,
		},
		{
			Name:            OpExportContacts,
			Description:     "Export personal contacts",
			RequiredFeature: types.FeatureContactExport,
			Scope:           types.ScopePersonal,
		},
		{
			Name:            OpConfigureCustomDomain,
			Description:     "Serve the profile page from a custom domain",
			RequiredFeature: types.FeatureCustomDomain,
			Scope:           types.ScopePersonal,
		},
		{
			Name:            OpViewAdvancedAnalytics,
			Description:     "View advanced profile analytics",
			RequiredFeature: types.FeatureAdvancedAnalytics,
			Scope:           types.ScopePersonal,
		},
		{
			Name:        OpViewOrganization,
			Description: "View the caller's organization",
			Scope:       types.ScopeOrganization,
		},
		{
			Name:             OpManageOrganization,
			Description:      "Change organization settings",
			RequiredFeature:  types.FeatureTeamSharing,
			Scope:            types.ScopeOrganization,
			RequiredOrgRoles: orgAdministrators,
		},
		{
			Name:             OpCreateTeam,
			Description:      "Create a team inside the organization",
			RequiredFeature:  types.FeatureTeamSharing,
			Scope:            types.ScopeOrganization,
			RequiredOrgRoles: orgAdministrators,
		},
		{
			Name:               OpShareContactsWithTeam,
			Description:        "Share personal contacts with a team",
			RequiredFeature:    types.FeatureTeamSharing,
			Scope:              types.ScopeTeam,
			RequiredTeamRoles:  allTeamRoles,
			OverridePermission: types.PermShareContacts,
		},
		{
			Name:               OpViewTeamContacts,
			Description:        "View contacts shared with a team",
			RequiredFeature:    types.FeatureTeamSharing,
			Scope:              types.ScopeTeam,
			RequiredTeamRoles:  allTeamRoles,
			OverridePermission: types.PermViewTeamContacts,
		},
		{
			Name:               OpExportTeamContacts,
			Description:        "Export a team's shared contacts",
			RequiredFeature:    types.FeatureEnterpriseTeams,
			Scope:              types.ScopeTeam,
			RequiredTeamRoles:  leadTeamRoles,
			OverridePermission: types.PermExportTeamContacts,
		},
		{
			Name:               OpInviteTeamMember,
			Description:        "Invite a user into a team",
			RequiredFeature:    types.FeatureTeamSharing,
			Scope:              types.ScopeTeam,
			RequiredTeamRoles:  leadTeamRoles,
			OverridePermission: types.PermInviteMembers,
		},
		{
			Name:               OpRemoveTeamMember,
			Description:        "Remove a member from a team",
			RequiredFeature:    types.FeatureTeamSharing,
			Scope:              types.ScopeTeam,
			RequiredTeamRoles:  managerTeamRoles,
			OverridePermission: types.PermRemoveMembers,
		},
		{
			Name:               OpUpdateMemberRole,
			Description:        "Change a team member's role",
			RequiredFeature:    types.FeatureTeamSharing,
			Scope:              types.ScopeTeam,
			RequiredTeamRoles:  managerTeamRoles,
			OverridePermission: types.PermUpdateMemberRoles,
			MutatesMemberRole:  true,
		},
	}

	ops := make(map[types.OperationName]types.OperationDescriptor, len(descriptors))
	for _, d := range descriptors {
		if !d.IsBillable {
			d.EstimatedCost = decimal.Zero
			d.ConsumesRun = types.RunNone
		}
		ops[d.Name] = d
	}
	return &OperationRegistry{ops: ops}
}

// Lookup returns the descriptor for name.
func (r *OperationRegistry) Lookup(name types.OperationName) (types.OperationDescriptor, bool) {
	d, ok := r.ops[name]
	return d, ok
}

// List returns all descriptors ordered by name.
func (r *OperationRegistry) List() []types.OperationDescriptor {
	out := make([]types.OperationDescriptor, 0, len(r.ops))
	for _, d := range r.ops {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

package access

import (
	"sort"

	"profilehub/internal/types"
)

// roleDefaults lists the permissions each team role holds without any
// explicit override.
var roleDefaults = map[types.TeamRole][]types.TeamPermission{
	types.TeamRoleManager: types.AllTeamPermissions,
	types.TeamRoleLead: {
		types.PermShareContacts,
		types.PermViewTeamContacts,
		types.PermInviteMembers,
		types.PermExportTeamContacts,
	},
	types.TeamRoleEmployee: {
		types.PermShareContacts,
		types.PermViewTeamContacts,
	},
}

type teamCapability struct {
	role    types.TeamRole
	granted types.PermissionSet
}

// Capabilities is the role and permission view of one MembershipContext.
// Every team's permission set is the role defaults plus explicit overrides;
// overrides only ever add permissions.
type Capabilities struct {
	orgID   string
	orgRole types.OrgRole
	teams   map[string]teamCapability
}

// NewCapabilities computes the capability set for m.
func NewCapabilities(m types.MembershipContext) Capabilities {
	c := Capabilities{
		orgID:   m.OrganizationID,
		orgRole: m.OrganizationRole,
		teams:   make(map[string]teamCapability, len(m.Teams)),
	}
	if !m.InOrganization() {
		c.orgRole = ""
		return c
	}

	for id, tm := range m.Teams {
		granted := make(types.PermissionSet)
		for _, p := range roleDefaults[tm.Role] {
			granted[p] = struct{}{}
		}
		for p := range tm.Permissions {
			granted[p] = struct{}{}
		}
		c.teams[id] = teamCapability{role: tm.Role, granted: granted}
	}
	return c
}

// InOrganization reports whether the user belongs to an organization.
func (c Capabilities) InOrganization() bool {
	return c.orgID != ""
}

// HasOrgRole reports whether the user's organization role is one of roles.
func (c Capabilities) HasOrgRole(roles ...types.OrgRole) bool {
	if !c.InOrganization() {
		return false
	}
	for _, r := range roles {
		if c.orgRole == r {
			return true
		}
	}
	return false
}

// TeamRole returns the user's role in teamID.
func (c Capabilities) TeamRole(teamID string) (types.TeamRole, bool) {
	tc, ok := c.teams[teamID]
	return tc.role, ok
}

// HasTeamRole reports whether the user's role in teamID is one of roles.
func (c Capabilities) HasTeamRole(teamID string, roles ...types.TeamRole) bool {
	tc, ok := c.teams[teamID]
	if !ok {
		return false
	}
	for _, r := range roles {
		if tc.role == r {
			return true
		}
	}
	return false
}

// Can reports whether the user holds permission p in teamID.
func (c Capabilities) Can(teamID string, p types.TeamPermission) bool {
	tc, ok := c.teams[teamID]
	if !ok {
		return false
	}
	return tc.granted.Has(p)
}

// Permissions returns the user's permissions in teamID, sorted.
func (c Capabilities) Permissions(teamID string) []types.TeamPermission {
	tc, ok := c.teams[teamID]
	if !ok {
		return nil
	}
	out := make([]types.TeamPermission, 0, len(tc.granted))
	for p := range tc.granted {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

package types

// SubscriptionLevel identifies the billing plan a user is subscribed to.
// Levels form a ranked ladder used for upgrade suggestions.
type SubscriptionLevel string

const (
	LevelFree       SubscriptionLevel = "free"
	LevelPro        SubscriptionLevel = "pro"
	LevelPremium    SubscriptionLevel = "premium"
	LevelBusiness   SubscriptionLevel = "business"
	LevelEnterprise SubscriptionLevel = "enterprise"
)

// LevelLadder lists every subscription level from lowest to highest rank.
var LevelLadder = []SubscriptionLevel{
	LevelFree,
	LevelPro,
	LevelPremium,
	LevelBusiness,
	LevelEnterprise,
}

// Rank returns the position of the level on the ladder, or -1 when the level
// is not recognised.
func (l SubscriptionLevel) Rank() int {
	for i, lvl := range LevelLadder {
		if lvl == l {
			return i
		}
	}
	return -1
}

// IsValid reports whether the level is one of the known subscription levels.
func (l SubscriptionLevel) IsValid() bool {
	return l.Rank() >= 0
}

// FeatureFlag is an opaque identifier for a tier-gated capability.
type FeatureFlag string

const (
	FeatureBasicGroups       FeatureFlag = "BASIC_GROUPS"
	FeatureAdvancedGroups    FeatureFlag = "ADVANCED_GROUPS"
	FeatureAIGrouping        FeatureFlag = "AI_GROUPING"
	FeatureBusinessCardScan  FeatureFlag = "BUSINESS_CARD_SCAN"
	FeatureContactExport     FeatureFlag = "CONTACT_EXPORT"
	FeatureContactEnrichment FeatureFlag = "CONTACT_ENRICHMENT"
	FeatureCustomDomain      FeatureFlag = "CUSTOM_DOMAIN"
	FeatureAdvancedAnalytics FeatureFlag = "ADVANCED_ANALYTICS"
	FeatureTeamSharing       FeatureFlag = "TEAM_SHARING"
	FeatureEnterpriseTeams   FeatureFlag = "ENTERPRISE_TEAMS"
	FeatureAPIAccess         FeatureFlag = "API_ACCESS"
)

// OrgRole defines authorization levels within an organization.
type OrgRole string

const (
	OrgRoleOwner  OrgRole = "owner"
	OrgRoleAdmin  OrgRole = "admin"
	OrgRoleMember OrgRole = "member"
)

// IsValid reports whether the role is a recognised organization role.
func (r OrgRole) IsValid() bool {
	switch r {
	case OrgRoleOwner, OrgRoleAdmin, OrgRoleMember:
		return true
	}
	return false
}

// TeamRole defines a user's role within a single team.
type TeamRole string

const (
	TeamRoleManager  TeamRole = "manager"
	TeamRoleLead     TeamRole = "team_lead"
	TeamRoleEmployee TeamRole = "employee"
)

// IsValid reports whether the role is a recognised team role.
func (r TeamRole) IsValid() bool {
	switch r {
	case TeamRoleManager, TeamRoleLead, TeamRoleEmployee:
		return true
	}
	return false
}

// TeamPermission is an explicit per-team capability that may be granted to a
// member on top of the defaults implied by their team role.
type TeamPermission string

const (
	PermUpdateMemberRoles  TeamPermission = "canUpdateMemberRoles"
	PermShareContacts      TeamPermission = "canShareContacts"
	PermViewTeamContacts   TeamPermission = "canViewTeamContacts"
	PermInviteMembers      TeamPermission = "canInviteMembers"
	PermRemoveMembers      TeamPermission = "canRemoveMembers"
	PermManageTeam         TeamPermission = "canManageTeam"
	PermExportTeamContacts TeamPermission = "canExportTeamContacts"
)

// AllTeamPermissions is the closed set of recognised team permissions.
var AllTeamPermissions = []TeamPermission{
	PermUpdateMemberRoles,
	PermShareContacts,
	PermViewTeamContacts,
	PermInviteMembers,
	PermRemoveMembers,
	PermManageTeam,
	PermExportTeamContacts,
}

// IsValid reports whether the permission is a recognised team permission.
func (p TeamPermission) IsValid() bool {
	for _, known := range AllTeamPermissions {
		if known == p {
			return true
		}
	}
	return false
}

// OperationName identifies a gated operation.
type OperationName string

// OperationScope determines which membership checks an operation requires.
type OperationScope string

const (
	ScopePersonal     OperationScope = "personal"
	ScopeOrganization OperationScope = "organization"
	ScopeTeam         OperationScope = "team"
)

// RunKind identifies which run budget a billable operation consumes.
type RunKind string

const (
	RunNone RunKind = "none"
	RunAI   RunKind = "ai"
	RunAPI  RunKind = "api"
)

// ReasonCode is the machine-readable outcome of an access validation.
type ReasonCode string

const (
	ReasonOK               ReasonCode = "OK"
	ReasonNoFeature        ReasonCode = "NO_FEATURE"
	ReasonInsufficientRole ReasonCode = "INSUFFICIENT_ROLE"
	ReasonBudgetExceeded   ReasonCode = "BUDGET_EXCEEDED"
	ReasonNotInOrg         ReasonCode = "NOT_IN_ORG"
	ReasonNotInTeam        ReasonCode = "NOT_IN_TEAM"
	ReasonUnknownOperation ReasonCode = "UNKNOWN_OPERATION"
	ReasonInvalidContext   ReasonCode = "INVALID_CONTEXT"
)

// ActorType identifies the kind of authenticated entity making a request.
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// Telemetry metric names and dimensions shared by the metrics backends.
const (
	MetricAPILatency   = "APILatency"
	MetricAPIRequests  = "APIRequestCount"
	MetricVerdicts     = "AccessVerdict"
	MetricUsageCharged = "UsageCharged"

	DimEndpoint  = "Endpoint"
	DimStatus    = "Status"
	DimOperation = "Operation"
	DimReason    = "Reason"
	DimRunKind   = "RunKind"

	MetricNamespace = "ProfileHub"
)

package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// CostCap is a monthly spending ceiling. Unlimited caps always pass budget checks
// and Amount is ignored.
type CostCap struct {
	Amount    decimal.Decimal `json:"amount"`
	Unlimited bool            `json:"unlimited"`
}

// LimitedCost returns a finite cost cap.
func LimitedCost(amount string) CostCap {
	return CostCap{Amount: decimal.RequireFromString(amount)}
}

// UnlimitedCost returns the "unlimited" cost cap sentinel.
func UnlimitedCost() CostCap {
	return CostCap{Unlimited: true}
}

// RunCap is a monthly ceiling on billable runs of one kind.
type RunCap struct {
	Max       int64 `json:"max"`
	Unlimited bool  `json:"unlimited"`
}

// LimitedRuns returns a finite run cap.
func LimitedRuns(max int64) RunCap {
	return RunCap{Max: max}
}

// UnlimitedRuns returns the "unlimited" run cap sentinel.
func UnlimitedRuns() RunCap {
	return RunCap{Unlimited: true}
}

// TierLimits holds the numeric limits of a subscription tier.
type TierLimits struct {
	MaxCost    CostCap `json:"max_cost"`
	MaxRunsAI  RunCap  `json:"max_runs_ai"`
	MaxRunsAPI RunCap  `json:"max_runs_api"`
}

// FeatureSet is an immutable-by-convention set of feature flags.
type FeatureSet map[FeatureFlag]struct{}

// NewFeatureSet builds a FeatureSet from the given flags.
func NewFeatureSet(flags ...FeatureFlag) FeatureSet {
	fs := make(FeatureSet, len(flags))
	for _, f := range flags {
		fs[f] = struct{}{}
	}
	return fs
}

// Has reports whether the set contains the flag.
func (fs FeatureSet) Has(f FeatureFlag) bool {
	_, ok := fs[f]
	return ok
}

// Sorted returns the flags in lexical order.
func (fs FeatureSet) Sorted() []FeatureFlag {
	out := make([]FeatureFlag, 0, len(fs))
	for f := range fs {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON renders the set as a sorted array.
func (fs FeatureSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(fs.Sorted())
}

// SubscriptionTier is the static definition of one subscription level.
type SubscriptionTier struct {
	Level       SubscriptionLevel `json:"level"`
	DisplayName string            `json:"display_name"`
	Features    FeatureSet        `json:"features"`
	Limits      TierLimits        `json:"limits"`
	// UpgradeTo is the next level on the ladder, empty at the top.
	UpgradeTo SubscriptionLevel `json:"upgrade_to,omitempty"`
}

// UsageRecord holds a user's accumulated usage for one calendar month.
type UsageRecord struct {
	UserID       string          `json:"user_id"`
	Month        string          `json:"month"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	TotalRunsAI  int64           `json:"total_runs_ai"`
	TotalRunsAPI int64           `json:"total_runs_api"`
	UpdatedAt    time.Time       `json:"updated_at,omitzero"`
}

// UsageCostScale is the number of decimal places a usage cost may carry.
const UsageCostScale = 4

// MaxUsageCost bounds a single charge.
var MaxUsageCost = decimal.NewFromInt(1_000_000)

// ValidateUsageCost rejects costs that are negative, larger than MaxUsageCost
// or finer than UsageCostScale decimal places.
func ValidateUsageCost(c decimal.Decimal) error {
	var msg string
	switch {
	case c.IsNegative():
		msg = "cost must not be negative"
	case c.GreaterThan(MaxUsageCost):
		msg = "cost must not exceed " + MaxUsageCost.String()
	case !c.Equal(c.Truncate(UsageCostScale)):
		msg = fmt.Sprintf("cost must have at most %d decimal places", UsageCostScale)
	default:
		return nil
	}
	return NewAppErrorWithDetails(ErrCodeValidationInvalidCost, msg, nil, map[string]any{"cost": c.String()})
}

// UsageDelta is a single consumption event applied to a UsageRecord.
type UsageDelta struct {
	Cost   decimal.Decimal
	AIRun  bool
	APIRun bool
}

// PermissionSet is a set of explicit team permissions.
type PermissionSet map[TeamPermission]struct{}

// Has reports whether the set contains the permission.
func (ps PermissionSet) Has(p TeamPermission) bool {
	_, ok := ps[p]
	return ok
}

// TeamMembership is a validated team membership of a user.
type TeamMembership struct {
	TeamID      string        `json:"team_id"`
	Role        TeamRole      `json:"role"`
	Permissions PermissionSet `json:"-"`
}

// MembershipContext aggregates a user's organization and team memberships.
// A user without OrganizationID never has teams.
type MembershipContext struct {
	UserID           string                    `json:"user_id"`
	OrganizationID   string                    `json:"organization_id,omitempty"`
	OrganizationRole OrgRole                   `json:"organization_role,omitempty"`
	Teams            map[string]TeamMembership `json:"teams"`
}

// InOrganization reports whether the user belongs to an organization.
func (m MembershipContext) InOrganization() bool {
	return m.OrganizationID != ""
}

// MembershipRecord is the raw, unvalidated membership data read from the
// membership store. Role and permission fields are plain strings because the
// store may hold stale or corrupt values.
type MembershipRecord struct {
	OrganizationID   string
	OrganizationRole string
	Teams            []TeamMembershipRecord
}

// TeamMembershipRecord is one raw team membership row.
type TeamMembershipRecord struct {
	TeamID         string
	OrganizationID string
	Role           string
	Permissions    map[string]bool
}

// OperationDescriptor declares the requirements of a gated operation.
type OperationDescriptor struct {
	Name            OperationName  `json:"name"`
	Description     string         `json:"description"`
	RequiredFeature FeatureFlag    `json:"required_feature,omitempty"`
	Scope           OperationScope `json:"scope"`

	// RequiredTeamRoles is non-empty for team-scoped operations.
	RequiredTeamRoles []TeamRole `json:"required_team_roles,omitempty"`
	// OverridePermission lets an explicit team permission satisfy RequiredTeamRoles.
	OverridePermission TeamPermission `json:"override_permission,omitempty"`
	// RequiredOrgRoles restricts organization-scoped operations to the listed roles.
	RequiredOrgRoles []OrgRole `json:"required_org_roles,omitempty"`

	IsBillable    bool            `json:"is_billable"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	ConsumesRun   RunKind         `json:"consumes_run"`

	// MutatesMemberRole marks operations subject to the self-demotion guard.
	MutatesMemberRole bool `json:"-"`
}

// TeamScoped reports whether the operation requires a team role check.
func (d OperationDescriptor) TeamScoped() bool {
	return len(d.RequiredTeamRoles) > 0
}

// Subject identifies the caller of a validation.
type Subject struct {
	UserID            string
	SubscriptionLevel SubscriptionLevel
}

// OperationContext carries the request-specific parameters of an operation.
type OperationContext struct {
	TeamID       string   `json:"team_id,omitempty"`
	TargetUserID string   `json:"target_user_id,omitempty"`
	NewRole      TeamRole `json:"new_role,omitempty"`
}

// BudgetStatus is the outcome of a budget check.
type BudgetStatus struct {
	Allowed          bool    `json:"allowed"`
	Reason           string  `json:"reason,omitempty"`
	Month            string  `json:"month"`
	RemainingCost    CostCap `json:"remaining_cost"`
	RemainingRunsAI  RunCap  `json:"remaining_runs_ai"`
	RemainingRunsAPI RunCap  `json:"remaining_runs_api"`
}

// Verdict is the unified result of an access validation. It is never persisted.
type Verdict struct {
	Allowed     bool               `json:"allowed"`
	ReasonCode  ReasonCode         `json:"reason_code"`
	Message     string             `json:"message"`
	UpgradeHint *SubscriptionLevel `json:"upgrade_hint"`
	Operation   OperationName      `json:"operation"`
	Budget      *BudgetStatus      `json:"budget,omitempty"`
}

// Allow builds an OK verdict for the operation.
func Allow(op OperationName) Verdict {
	return Verdict{Allowed: true, ReasonCode: ReasonOK, Message: "allowed", Operation: op}
}

// Deny builds a denial verdict for the operation.
func Deny(op OperationName, code ReasonCode, message string) Verdict {
	return Verdict{Allowed: false, ReasonCode: code, Message: message, Operation: op}
}

// UsageEvent describes a charge that has been recorded against the ledger.
type UsageEvent struct {
	UserID     string          `json:"user_id"`
	Operation  OperationName   `json:"operation"`
	Month      string          `json:"month"`
	Cost       decimal.Decimal `json:"cost"`
	RunKind    RunKind         `json:"run_kind"`
	Totals     UsageRecord     `json:"totals"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// APIToken is a stored bearer token resolved to its owner. Tokens are stored
// by hash only.
type APIToken struct {
	UserID            string
	SubscriptionLevel SubscriptionLevel
	ExpiresAt         *time.Time
	RevokedAt         *time.Time
}

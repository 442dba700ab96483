// Package billing provides the subscription tier catalog, the monthly usage
// ledger and the budget guard built on top of both.
package billing

import (
	"fmt"

	"profilehub/internal/types"
)

// TierCatalog defines the authoritative feature sets and limits for each
// subscription level. It is the single source of truth for what each plan allows.
type TierCatalog interface {
	// GetTier returns the tier for the given level. Unknown levels resolve to
	// the free tier to fail safely.
	GetTier(level types.SubscriptionLevel) types.SubscriptionTier
	HasFeature(level types.SubscriptionLevel, feature types.FeatureFlag) bool
	// NextTier returns the next level up the ladder, or false at the top.
	NextTier(level types.SubscriptionLevel) (types.SubscriptionLevel, bool)
	// Tiers lists every tier from lowest to highest rank.
	Tiers() []types.SubscriptionTier
}

// staticTierCatalog is a compile-time catalog backed by an in-memory map.
type staticTierCatalog struct {
	tiers map[types.SubscriptionLevel]types.SubscriptionTier
}

// tierDefaults is the plan table:
//
//	| Plan       | Monthly cost cap | AI runs   | API runs  |
//	|------------|------------------|-----------|-----------|
//	| Free       | 0.50             | 3         | 0         |
//	| Pro        | 5.00             | 50        | 0         |
//	| Premium    | 20.00            | 200       | 100       |
//	| Business   | 100.00           | 1,000     | 1,000     |
//	| Enterprise | unlimited        | unlimited | unlimited |
//
// Every tier carries the features of the tier below it.
var tierDefaults = buildTierDefaults()

func buildTierDefaults() map[types.SubscriptionLevel]types.SubscriptionTier {
	free := []types.FeatureFlag{types.FeatureBasicGroups}
	pro := append(append([]types.FeatureFlag{}, free...),
		types.FeatureAdvancedGroups,
		types.FeatureBusinessCardScan,
		types.FeatureContactExport,
		types.FeatureCustomDomain,
	)
	premium := append(append([]types.FeatureFlag{}, pro...),
		types.FeatureAIGrouping,
		types.FeatureContactEnrichment,
		types.FeatureAdvancedAnalytics,
	)
	business := append(append([]types.FeatureFlag{}, premium...),
		types.FeatureTeamSharing,
		types.FeatureAPIAccess,
	)
	enterprise := append(append([]types.FeatureFlag{}, business...),
		types.FeatureEnterpriseTeams,
	)

	return map[types.SubscriptionLevel]types.SubscriptionTier{
		types.LevelFree: {
			Level:       types.LevelFree,
			DisplayName: "Free",
			Features:    types.NewFeatureSet(free...),
			Limits: types.TierLimits{
				MaxCost:    types.LimitedCost("0.50"),
				MaxRunsAI:  types.LimitedRuns(3),
				MaxRunsAPI: types.LimitedRuns(0),
			},
			UpgradeTo: types.LevelPro,
		},
		types.LevelPro: {
			Level:       types.LevelPro,
			DisplayName: "Pro",
			Features:    types.NewFeatureSet(pro...),
			Limits: types.TierLimits{
				MaxCost:    types.LimitedCost("5.00"),
				MaxRunsAI:  types.LimitedRuns(50),
				MaxRunsAPI: types.LimitedRuns(0),
			},
			UpgradeTo: types.LevelPremium,
		},
		types.LevelPremium: {
			Level:       types.LevelPremium,
			DisplayName: "Premium",
			Features:    types.NewFeatureSet(premium...),
			Limits: types.TierLimits{
				MaxCost:    types.LimitedCost("20.00"),
				MaxRunsAI:  types.LimitedRuns(200),
				MaxRunsAPI: types.LimitedRuns(100),
			},
			UpgradeTo: types.LevelBusiness,
		},
		types.LevelBusiness: {
			Level:       types.LevelBusiness,
			DisplayName: "Business",
			Features:    types.NewFeatureSet(business...),
			Limits: types.TierLimits{
				MaxCost:    types.LimitedCost("100.00"),
				MaxRunsAI:  types.LimitedRuns(1000),
				MaxRunsAPI: types.LimitedRuns(1000),
			},
			UpgradeTo: types.LevelEnterprise,
		},
		types.LevelEnterprise: {
			Level:       types.LevelEnterprise,
			DisplayName: "Enterprise",
			Features:    types.NewFeatureSet(enterprise...),
			Limits: types.TierLimits{
				MaxCost:    types.UnlimitedCost(),
				MaxRunsAI:  types.UnlimitedRuns(),
				MaxRunsAPI: types.UnlimitedRuns(),
			},
		},
	}
}

// NewStaticTierCatalog returns a TierCatalog backed by the built-in plan table.
func NewStaticTierCatalog() TierCatalog {
	return NewTierCatalog(tierDefaults)
}

// NewTierCatalog returns a TierCatalog backed by the given table. The table is
// copied so callers cannot mutate the catalog after construction.
func NewTierCatalog(tiers map[types.SubscriptionLevel]types.SubscriptionTier) TierCatalog {
	m := make(map[types.SubscriptionLevel]types.SubscriptionTier, len(tiers))
	for k, v := range tiers {
		features := make(types.FeatureSet, len(v.Features))
		for f := range v.Features {
			features[f] = struct{}{}
		}
		v.Features = features
		m[k] = v
	}
	return &staticTierCatalog{tiers: m}
}

func (c *staticTierCatalog) GetTier(level types.SubscriptionLevel) types.SubscriptionTier {
	if tier, ok := c.tiers[level]; ok {
		return tier
	}
	return c.tiers[types.LevelFree]
}

func (c *staticTierCatalog) HasFeature(level types.SubscriptionLevel, feature types.FeatureFlag) bool {
	return c.GetTier(level).Features.Has(feature)
}

func (c *staticTierCatalog) NextTier(level types.SubscriptionLevel) (types.SubscriptionLevel, bool) {
	rank := c.GetTier(level).Level.Rank()
	if rank < 0 || rank+1 >= len(types.LevelLadder) {
		return "", false
	}
	return types.LevelLadder[rank+1], true
}

func (c *staticTierCatalog) Tiers() []types.SubscriptionTier {
	out := make([]types.SubscriptionTier, 0, len(types.LevelLadder))
	for _, lvl := range types.LevelLadder {
		if tier, ok := c.tiers[lvl]; ok {
			out = append(out, tier)
		}
	}
	return out
}

// Violation describes a place where a higher tier is not a superset of a
// lower one.
type Violation struct {
	Lower   types.SubscriptionLevel
	Higher  types.SubscriptionLevel
	Problem string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s -> %s: %s", v.Lower, v.Higher, v.Problem)
}

// Validate checks the catalog for completeness and monotonicity: every level
// on the ladder has a tier, features only grow and limits never shrink as the
// rank increases. Upgrade hints assume this holds.
func Validate(c TierCatalog) []Violation {
	var violations []Violation
	tiers := c.Tiers()
	if len(tiers) != len(types.LevelLadder) {
		violations = append(violations, Violation{Problem: fmt.Sprintf("catalog defines %d of %d levels", len(tiers), len(types.LevelLadder))})
	}

	for i := 0; i+1 < len(tiers); i++ {
		lo, hi := tiers[i], tiers[i+1]
		for _, f := range lo.Features.Sorted() {
			if !hi.Features.Has(f) {
				violations = append(violations, Violation{lo.Level, hi.Level, fmt.Sprintf("feature %s dropped", f)})
			}
		}
		if costLess(hi.Limits.MaxCost, lo.Limits.MaxCost) {
			violations = append(violations, Violation{lo.Level, hi.Level, "max_cost decreases"})
		}
		if runsLess(hi.Limits.MaxRunsAI, lo.Limits.MaxRunsAI) {
			violations = append(violations, Violation{lo.Level, hi.Level, "max_runs_ai decreases"})
		}
		if runsLess(hi.Limits.MaxRunsAPI, lo.Limits.MaxRunsAPI) {
			violations = append(violations, Violation{lo.Level, hi.Level, "max_runs_api decreases"})
		}
	}
	return violations
}

func costLess(a, b types.CostCap) bool {
	switch {
	case a.Unlimited:
		return false
	case b.Unlimited:
		return true
	default:
		return a.Amount.LessThan(b.Amount)
	}
}

func runsLess(a, b types.RunCap) bool {
	switch {
	case a.Unlimited:
		return false
	case b.Unlimited:
		return true
	default:
		return a.Max < b.Max
	}
}

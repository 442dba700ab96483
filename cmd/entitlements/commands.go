package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"profilehub/internal/access"
	"profilehub/internal/billing"
	"profilehub/internal/config"
	"profilehub/internal/types"
)

func newTiersCmd() *cobra.Command {
	tiers := &cobra.Command{
		Use:   "tiers",
		Short: "Inspect the subscription tier catalog",
	}

	tiers.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every tier with its limits and features",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			printf(tw, "LEVEL\tMAX COST\tAI RUNS\tAPI RUNS\tFEATURES\n")
			for _, t := range billing.NewStaticTierCatalog().Tiers() {
				features := make([]string, 0, len(t.Features))
				for _, f := range t.Features.Sorted() {
					features = append(features, string(f))
				}
				printf(tw, "%s\t%s\t%s\t%s\t%s\n",
					t.Level,
					formatCost(t.Limits.MaxCost),
					formatRuns(t.Limits.MaxRunsAI),
					formatRuns(t.Limits.MaxRunsAPI),
					strings.Join(features, ","),
				)
			}
			return tw.Flush()
		},
	})

	tiers.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Check that every tier includes the features and limits of the one below",
		RunE: func(cmd *cobra.Command, _ []string) error {
			violations := billing.Validate(billing.NewStaticTierCatalog())
			for _, v := range violations {
				printf(cmd.ErrOrStderr(), "violation: %s\n", v)
			}
			if len(violations) > 0 {
				return fmt.Errorf("tier catalog has %d violation(s)", len(violations))
			}
			printf(cmd.OutOrStdout(), "tier catalog OK (%d tiers)\n", len(types.LevelLadder))
			return nil
		},
	})
	return tiers
}

func newOperationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "operations",
		Short: "List the gated operations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			printf(tw, "OPERATION\tSCOPE\tFEATURE\tBILLABLE\n")
			for _, op := range access.NewOperationRegistry(access.DefaultPricing()).List() {
				billable := "-"
				if op.IsBillable {
					billable = fmt.Sprintf("%s (%s)", op.EstimatedCost.StringFixed(2), op.ConsumesRun)
				}
				printf(tw, "%s\t%s\t%s\t%s\n", op.Name, op.Scope, orDash(string(op.RequiredFeature)), billable)
			}
			return tw.Flush()
		},
	}
}

func newCheckCmd(open opener) *cobra.Command {
	var (
		userID, level, op string
		teamID, target    string
		newRole           string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate whether a user may perform an operation",
		Long: `Evaluate an access decision exactly as the API would, without charging.

Exits non-zero when the decision cannot be made (for example when the
membership store is unreachable). A denial is printed, not an error.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lvl := types.SubscriptionLevel(level)
			if !lvl.IsValid() {
				return fmt.Errorf("unknown subscription level %q", level)
			}
			return withRuntime(cmd, open, func(ctx context.Context, rt *runtime) error {
				v, err := rt.services.Validator.Validate(ctx,
					types.Subject{UserID: userID, SubscriptionLevel: lvl},
					types.OperationName(op),
					types.OperationContext{TeamID: teamID, TargetUserID: target, NewRole: types.TeamRole(newRole)},
				)
				if err != nil {
					return fmt.Errorf("access could not be decided: %w", err)
				}
				return writeJSON(cmd, v)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user ID [required]")
	cmd.Flags().StringVar(&level, "level", string(types.LevelFree), "subscription level")
	cmd.Flags().StringVar(&op, "op", "", "operation name, e.g. EXPORT_CONTACTS [required]")
	cmd.Flags().StringVar(&teamID, "team", "", "team ID for team operations")
	cmd.Flags().StringVar(&target, "target", "", "target user ID for role changes")
	cmd.Flags().StringVar(&newRole, "new-role", "", "new team role for role changes")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("op")
	return cmd
}

func newUsageCmd(open opener) *cobra.Command {
	var userID, month string

	usage := &cobra.Command{
		Use:   "usage",
		Short: "Show a user's usage for a month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if month == "" {
				month = billing.MonthKey(time.Now())
			}
			return withRuntime(cmd, open, func(ctx context.Context, rt *runtime) error {
				rec, err := rt.services.Ledger.GetUsage(ctx, userID, month)
				if err != nil {
					return err
				}
				return writeJSON(cmd, rec)
			})
		},
	}
	usage.Flags().StringVar(&userID, "user", "", "user ID [required]")
	usage.Flags().StringVar(&month, "month", "", "month as YYYY-MM (default: current UTC month)")
	_ = usage.MarkFlagRequired("user")

	var limit int
	top := &cobra.Command{
		Use:   "top",
		Short: "List the highest-spending users of a month (postgres only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if month == "" {
				month = billing.MonthKey(time.Now())
			}
			if limit <= 0 {
				return errors.New("--limit must be positive")
			}
			return withRuntime(cmd, open, func(ctx context.Context, rt *runtime) error {
				if rt.stores.Reports == nil {
					return fmt.Errorf("usage top needs STORE_BACKEND=%s", config.StorePostgres)
				}
				recs, err := rt.stores.Reports.ListMonth(ctx, month, limit)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				printf(tw, "USER\tCOST\tAI RUNS\tAPI RUNS\n")
				for _, r := range recs {
					printf(tw, "%s\t%s\t%d\t%d\n", r.UserID, r.TotalCost.StringFixed(2), r.TotalRunsAI, r.TotalRunsAPI)
				}
				return tw.Flush()
			})
		},
	}
	top.Flags().StringVar(&month, "month", "", "month as YYYY-MM (default: current UTC month)")
	top.Flags().IntVar(&limit, "limit", 20, "number of users to show")
	usage.AddCommand(top)
	return usage
}

func newIdempotencyCmd(open opener) *cobra.Command {
	idem := &cobra.Command{
		Use:   "idempotency",
		Short: "Maintain stored idempotency keys",
	}
	idem.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired idempotency keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *runtime) error {
				n, err := rt.stores.Idempotency.DeleteExpired(ctx)
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "purged %d expired key(s)\n", n)
				return nil
			})
		},
	})
	return idem
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatCost(c types.CostCap) string {
	if c.Unlimited {
		return "unlimited"
	}
	return c.Amount.StringFixed(2)
}

func formatRuns(r types.RunCap) string {
	if r.Unlimited {
		return "unlimited"
	}
	return fmt.Sprint(r.Max)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

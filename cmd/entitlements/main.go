// Command entitlements is the operator CLI for the entitlements service. It
// inspects the tier catalog, evaluates access decisions and reads usage
// against the store configured by the environment.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"profilehub/internal/app"
	"profilehub/internal/config"
)

// runtime is what commands that touch the stores receive.
type runtime struct {
	cfg      *config.Config
	stores   *app.Stores
	services *app.Services
}

// opener builds a runtime. Tests replace it with an in-memory one.
type opener func(ctx context.Context) (*runtime, error)

func main() {
	if err := newRootCmd(openFromEnv).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "entitlements",
		Short: "Inspect subscription tiers, access decisions and usage",
		Long: `entitlements is the operator CLI for the entitlements service.

It reads the same environment as the API server (APP_ENV, STORE_BACKEND,
DATABASE_URL, ...). Commands never charge usage.

Examples:
  entitlements tiers list
  entitlements check --user u_123 --level pro --op EXPORT_CONTACTS
  entitlements usage --user u_123 --month 2026-03`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if verbose {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newTiersCmd(),
		newOperationsCmd(),
		newCheckCmd(open),
		newUsageCmd(open),
		newIdempotencyCmd(open),
		newVersionCmd(),
	)
	return root
}

// openFromEnv loads the configuration and opens the configured stores.
// Metrics and usage events are not wired; the CLI never charges.
func openFromEnv(ctx context.Context) (*runtime, error) {
	cfg, err := config.LoadConfig(config.NewEnvVarProvider())
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &runtime{
		cfg:      cfg,
		stores:   stores,
		services: app.NewServices(cfg, stores, logger),
	}, nil
}

func withRuntime(cmd *cobra.Command, open opener, fn func(ctx context.Context, rt *runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := open(ctx)
	if err != nil {
		return err
	}
	defer rt.stores.Close()
	return fn(ctx, rt)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			printf(cmd.OutOrStdout(), "entitlements %s\n", config.NewBuildInfo())
		},
	}
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

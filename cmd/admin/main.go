package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ofsync/internal/app"
	"ofsync/internal/shared/config"
	"ofsync/internal/shared/logging"
)

var (
	timeout  time.Duration
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "admin",
		Short: "ofsync admin CLI - manual sync triggers and maintenance",
		Long: `Management commands for the Open Finance sync core.

Sync commands run in this process against the configured database and provider;
they honour SYNC_ENABLED like the scheduled jobs do.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Timeout for the operation (e.g., 5m, 1h)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(syncBalancesCmd())
	rootCmd.AddCommand(syncTransactionsCmd())
	rootCmd.AddCommand(syncAccountCmd())
	rootCmd.AddCommand(refreshTokensCmd())
	rootCmd.AddCommand(discoverCmd())
	rootCmd.AddCommand(revokeCmd())
	rootCmd.AddCommand(importInstitutionsCmd())
	rootCmd.AddCommand(staleAccountsCmd())
	rootCmd.AddCommand(ensureTopicCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env bundles what every command needs.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	// logs go to stderr so command output on stdout stays machine readable
	logger := logging.NewWithWriter(os.Stderr, logLevel, cfg.Log.Format)
	return &env{cfg: cfg, logger: logger}, nil
}

// withDeps loads config, builds the dependency graph and runs fn under the
// command timeout. Ctrl-C cancels the context.
func withDeps(fn func(ctx context.Context, deps *app.Dependencies, e *env) error) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	deps, err := app.NewDependencies(ctx, e.cfg, e.logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	return fn(ctx, deps, e)
}

func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

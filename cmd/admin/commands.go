package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ofsync/internal/app"
	"ofsync/internal/domain/synclog"
	"ofsync/internal/infrastructure/kafka"
	"ofsync/internal/infrastructure/postgres"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			ctx, cancel := commandContext()
			defer cancel()

			db, err := postgres.New(e.cfg.Database.ConnectionString())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(ctx); err != nil {
				return err
			}
			e.logger.Info("schema applied", "database", e.cfg.Database.DBName)
			return nil
		},
	}
}

func syncBalancesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-balances",
		Short: "Sync the balance of every enabled account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(ctx context.Context, deps *app.Dependencies, e *env) error {
				res, err := deps.Orchestrator.SyncAllBalances(ctx)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func syncTransactionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-transactions",
		Short: "Import transactions for every enabled account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(ctx context.Context, deps *app.Dependencies, e *env) error {
				res, err := deps.Orchestrator.SyncAllTransactions(ctx)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func syncAccountCmd() *cobra.Command {
	var syncType string

	cmd := &cobra.Command{
		Use:   "sync-account <account-id>",
		Short: "Sync one account now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := synclog.ParseSyncType(syncType)
			if err != nil {
				return err
			}
			return withDeps(func(ctx context.Context, deps *app.Dependencies, e *env) error {
				var records int
				if st == synclog.SyncTypeBalance {
					records, err = deps.Orchestrator.SyncAccountBalance(ctx, args[0])
				} else {
					records, err = deps.Orchestrator.SyncAccountTransactions(ctx, args[0])
				}
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"accountId": args[0], "syncType": st, "recordsImported": records})
			})
		},
	}

	cmd.Flags().StringVarP(&syncType, "type", "t", string(synclog.SyncTypeTransactions), "Sync type (BALANCE or TRANSACTIONS)")
	return cmd
}

func refreshTokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh-tokens",
		Short: "Refresh every consent whose access token is about to expire",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(ctx context.Context, deps *app.Dependencies, e *env) error {
				res, err := deps.Orchestrator.RefreshExpiringTokens(ctx)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func discoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover <consent-id>",
		Short: "Discover the accounts reachable through a consent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(ctx context.Context, deps *app.Dependencies, e *env) error {
				res, err := deps.Orchestrator.DiscoverAccounts(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func revokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <consent-id>",
		Short: "Revoke a consent and disable its accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(ctx context.Context, deps *app.Dependencies, e *env) error {
				c, err := deps.Consents.Revoke(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
}

func importInstitutionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-institutions <file.yaml>",
		Short: "Create or update institutions from a YAML file",
		Example: `  admin import-institutions institutions.yaml

  # institutions.yaml
  institutions:
    - code: bank-a
      name: Bank A`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer f.Close()

			return withDeps(func(ctx context.Context, deps *app.Dependencies, e *env) error {
				n, err := deps.Institutions.Import(ctx, f)
				if err != nil {
					return err
				}
				e.logger.Info("institutions imported", "count", n, "file", args[0])
				return printJSON(map[string]int{"imported": n})
			})
		},
	}
}

func staleAccountsCmd() *cobra.Command {
	var window time.Duration

	cmd := &cobra.Command{
		Use:   "stale-accounts",
		Short: "List enabled accounts without a successful sync inside the window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(func(ctx context.Context, deps *app.Dependencies, e *env) error {
				if window <= 0 {
					window = e.cfg.Sync.StaleAfter
				}
				ids, err := deps.Recorder.StaleAccounts(ctx, window)
				if err != nil {
					return err
				}
				if ids == nil {
					ids = []string{}
				}
				return printJSON(map[string]any{"window": window.String(), "accountIds": ids})
			})
		},
	}

	cmd.Flags().DurationVarP(&window, "window", "w", 0, "Staleness window (defaults to SYNC_STALE_AFTER)")
	return cmd
}

func ensureTopicCmd() *cobra.Command {
	var (
		partitions        int32
		replicationFactor int16
	)

	cmd := &cobra.Command{
		Use:   "ensure-topic",
		Short: "Create the sync events topic if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			if len(e.cfg.Kafka.Brokers) == 0 {
				return fmt.Errorf("KAFKA_BROKERS is not set")
			}

			ctx, cancel := commandContext()
			defer cancel()

			if err := kafka.EnsureTopic(ctx, e.cfg.Kafka, partitions, replicationFactor); err != nil {
				return err
			}
			e.logger.Info("topic ready", "topic", e.cfg.Kafka.SyncTopic)
			return nil
		},
	}

	cmd.Flags().Int32Var(&partitions, "partitions", 6, "Number of partitions")
	cmd.Flags().Int16Var(&replicationFactor, "replication-factor", 1, "Replication factor")
	return cmd
}

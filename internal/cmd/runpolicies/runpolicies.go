// Package runpolicies implements the "run-policies" CLI command: a manual
// trigger for the Policy Executor's one pass (spec.md §2 — policies only
// run on explicit trigger, never on a synchronous ingest path).
package runpolicies

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/memoric/memoric/internal/config"
	"github.com/memoric/memoric/internal/events"
	"github.com/memoric/memoric/internal/manager"
	"github.com/memoric/memoric/internal/policy"
	registrystore "github.com/memoric/memoric/internal/registry/store"
	"github.com/urfave/cli/v3"

	_ "github.com/memoric/memoric/internal/plugin/encrypt/kms"
	_ "github.com/memoric/memoric/internal/plugin/encrypt/vault"
	_ "github.com/memoric/memoric/internal/plugin/store/postgres"
	_ "github.com/memoric/memoric/internal/plugin/store/sqlite"
)

// Command returns the run-policies sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "run-policies",
		Usage: "Run one policy pass (migrate, trim, summarize, thread-summarize, cluster rebuild)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db-url",
				Sources:  cli.EnvVars("MEMORIC_DB_URL"),
				Usage:    "Store connection URL (or sqlite DSN)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "db-kind",
				Sources: cli.EnvVars("MEMORIC_DB_KIND"),
				Usage:   "Store backend (postgres|sqlite)",
				Value:   "postgres",
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Sources: cli.EnvVars("MEMORIC_REDIS_URL"),
				Usage:   "Redis URL backing the per-user advisory lock (optional)",
			},
			&cli.StringFlag{
				Name:    "capability-policy",
				Sources: cli.EnvVars("MEMORIC_CAPABILITY_POLICY"),
				Usage:   "Path to a Rego policy overriding the built-in global-scope rule (optional)",
			},
			&cli.StringFlag{
				Name:    "encryption-provider",
				Sources: cli.EnvVars("MEMORIC_ENCRYPTION_PROVIDER"),
				Usage:   "Content-at-rest encryption provider (plain|kms|vault)",
				Value:   "plain",
			},
			&cli.StringFlag{
				Name:    "encryption-kms-key-id",
				Sources: cli.EnvVars("MEMORIC_ENCRYPTION_KMS_KEY_ID"),
				Usage:   "AWS KMS key ID/ARN, required when --encryption-provider=kms",
			},
			&cli.StringFlag{
				Name:    "encryption-vault-transit-key",
				Sources: cli.EnvVars("MEMORIC_ENCRYPTION_VAULT_TRANSIT_KEY"),
				Usage:   "Vault Transit key name, required when --encryption-provider=vault",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Keep running policy passes on --interval instead of exiting after one",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Interval between policy passes when --watch is set",
				Value: 5 * time.Minute,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.DBURL = cmd.String("db-url")
			cfg.DatastoreType = cmd.String("db-kind")
			cfg.RedisURL = cmd.String("redis-url")
			cfg.Encryption.Provider = cmd.String("encryption-provider")
			cfg.Encryption.KMSKeyID = cmd.String("encryption-kms-key-id")
			cfg.Encryption.VaultTransitKey = cmd.String("encryption-vault-transit-key")
			ctx = config.WithContext(ctx, &cfg)

			loader, err := registrystore.Select(cfg.DatastoreType)
			if err != nil {
				return fmt.Errorf("run-policies: %w", err)
			}
			store, err := loader(ctx)
			if err != nil {
				return fmt.Errorf("run-policies: open store: %w", err)
			}
			defer store.Close()

			mgr, err := manager.New(ctx, store, &cfg, events.NewBroadcaster(), cmd.String("capability-policy"))
			if err != nil {
				return fmt.Errorf("run-policies: %w", err)
			}

			if cmd.Bool("watch") {
				policy.NewTicker(mgr.Executor, cmd.Duration("interval")).Start(ctx)
				return nil
			}

			counts, err := mgr.RunPolicies(ctx)
			if err != nil {
				return fmt.Errorf("run-policies: %w", err)
			}
			log.Info("policy run complete",
				"users_processed", counts.UsersProcessed,
				"users_skipped", counts.UsersSkipped,
				"migrated", counts.Migrated,
				"trimmed", counts.Trimmed,
				"summarized", counts.Summarized,
				"thread_summarized", counts.ThreadSummarized,
				"clustered", counts.Clustered,
			)
			return nil
		},
	}
}

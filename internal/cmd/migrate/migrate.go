// Package migrate implements the "migrate" CLI command: applies the
// selected store plugin's schema. CLI / config-file loading glue is
// explicitly out of scope for the core engine (spec.md §1); this is the
// thin wrapper a caller invokes before running the service.
package migrate

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/memoric/memoric/internal/config"
	registrystore "github.com/memoric/memoric/internal/registry/store"
	"github.com/urfave/cli/v3"

	// Import plugins to trigger init() registration of their loaders.
	_ "github.com/memoric/memoric/internal/plugin/store/postgres"
	_ "github.com/memoric/memoric/internal/plugin/store/sqlite"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the memory store schema",
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
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := config.DefaultConfig()
			cfg.DBURL = cmd.String("db-url")
			cfg.DatastoreType = cmd.String("db-kind")
			cfg.DatastoreMigrateAtStart = false // migrate explicitly below instead
			ctx = config.WithContext(ctx, &cfg)

			loader, err := registrystore.Select(cfg.DatastoreType)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			store, err := loader(ctx)
			if err != nil {
				return fmt.Errorf("migrate: open store: %w", err)
			}
			defer store.Close()

			log.Info("running store migration", "store", cfg.DatastoreType)
			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info("migration complete")
			return nil
		},
	}
}

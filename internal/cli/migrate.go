package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rivalapexmediation/migration-engine/internal/adapters/postgres"
	"github.com/rivalapexmediation/migration-engine/internal/infrastructure/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := postgres.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer store.Close()

	if err := postgres.Migrate(ctx, store.DB()); err != nil {
		return err
	}
	fmt.Println("Schema applied")
	return nil
}

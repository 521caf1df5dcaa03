package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keyxmakerx/gatekeeper/internal/config"
	"github.com/keyxmakerx/gatekeeper/internal/database"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	var down bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run MariaDB migrations",
		Long: `Apply all pending migrations from MIGRATIONS_PATH to the MariaDB database
configured by DB_* or DATABASE_URL. With --down, revert the latest one instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, down)
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "revert the most recent migration")
	return cmd
}

func runMigrate(cmd *cobra.Command, down bool) error {
	dbCfg, err := config.LoadDatabase()
	if err != nil {
		return fmt.Errorf("loading database config: %w", err)
	}

	cmd.Println("Connecting to database...")
	db, err := database.NewMariaDB(cmd.Context(), dbCfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	if down {
		cmd.Println("Rolling back latest migration...")
		if err := database.RollbackMigration(db, dbCfg.MigrationsPath); err != nil {
			return err
		}
		cmd.Println("Rollback completed successfully")
		return nil
	}

	cmd.Println("Running migrations...")
	if err := database.RunMigrations(db, dbCfg.MigrationsPath); err != nil {
		return err
	}

	cmd.Println("Migrations completed successfully")
	return nil
}

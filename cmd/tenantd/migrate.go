package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/tenantguard/internal/db"
	"github.com/dmitrymomot/tenantguard/internal/db/migrations"
	"github.com/dmitrymomot/tenantguard/pkg/pg"
)

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema and row policies",
	}
	cmd.AddCommand(newMigrateUpCommand(), newMigrateDownCommand(), newMigrateVersionCommand())
	return cmd
}

func newMigrateUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations, row policies and runtime grants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, log, err := loadDBConfig()
			if err != nil {
				return err
			}
			pool, err := pg.ConnectForMigrations(ctx, cfg.DB)
			if err != nil {
				return err
			}
			defer pool.Close()

			return db.Migrate(ctx, pool, cfg.DB, db.Roles{App: cfg.AppRole, System: cfg.SystemRole}, log)
		},
	}
}

func newMigrateDownCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, log, err := loadDBConfig()
			if err != nil {
				return err
			}
			pool, err := pg.ConnectForMigrations(ctx, cfg.DB)
			if err != nil {
				return err
			}
			defer pool.Close()

			return pg.MigrateDown(ctx, pool, migrations.FS, cfg.DB, log)
		},
	}
}

func newMigrateVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, _, err := loadDBConfig()
			if err != nil {
				return err
			}
			pool, err := pg.ConnectForMigrations(ctx, cfg.DB)
			if err != nil {
				return err
			}
			defer pool.Close()

			v, err := pg.MigrationVersion(ctx, pool, cfg.DB)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
			return err
		},
	}
}

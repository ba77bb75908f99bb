package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/tenantguard/internal/app"
	"github.com/dmitrymomot/tenantguard/pkg/config"
	"github.com/dmitrymomot/tenantguard/pkg/logger"
	"github.com/dmitrymomot/tenantguard/pkg/pg"
)

type rootOptions struct {
	envFiles []string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "tenantd",
		Short:         "Tenant-isolated records service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if len(opts.envFiles) == 0 {
				return nil
			}
			return config.LoadEnv(opts.envFiles...)
		},
	}
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to load before reading the environment")

	cmd.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newReplayCommand(),
		newVerifyCommand(),
		newTokenCommand(),
	)
	return cmd
}

// dbConfig is the environment of commands that only talk to Postgres.
type dbConfig struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`
	DB          pg.Config
	AppRole     string `env:"PG_APP_ROLE"`
	SystemRole  string `env:"PG_SYSTEM_ROLE"`
}

func loadDBConfig() (dbConfig, *slog.Logger, error) {
	var cfg dbConfig
	if err := config.Load(&cfg); err != nil {
		return cfg, nil, err
	}
	log := logger.New(
		logger.WithEnvironment(cfg.Environment, "tenantd"),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithOutput(os.Stderr),
	)
	return cfg, log, nil
}

func loadAppConfig() (app.Config, *slog.Logger, error) {
	var cfg app.Config
	if err := config.Load(&cfg); err != nil {
		return cfg, nil, err
	}
	return cfg, app.NewLogger(cfg, os.Stdout), nil
}

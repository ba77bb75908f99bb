package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/tenantguard/internal/app"
	"github.com/dmitrymomot/tenantguard/pkg/logger"
)

func newServeCommand() *cobra.Command {
	var skipVerify bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and process queued event deliveries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, log, err := loadAppConfig()
			if err != nil {
				return err
			}

			a, err := app.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if !skipVerify {
				if err := a.Verify(ctx); err != nil {
					log.ErrorContext(ctx, "tenant isolation is not enforced by the database", logger.Error(err))
					return err
				}
			}

			log.InfoContext(ctx, "tenantd starting", logger.Component("serve"))
			return a.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&skipVerify, "skip-verify", false, "start without checking row policies and the runtime role")
	return cmd
}

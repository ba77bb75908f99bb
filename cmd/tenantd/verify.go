package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/tenantguard/internal/db"
	"github.com/dmitrymomot/tenantguard/pkg/pg"
)

func newVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the runtime role cannot bypass row policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, _, err := loadDBConfig()
			if err != nil {
				return err
			}
			pool, err := pg.Connect(ctx, cfg.DB)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Verify(ctx, pool); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return err
		},
	}
}

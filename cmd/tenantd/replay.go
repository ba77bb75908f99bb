package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/tenantguard/internal/app"
)

func newReplayCommand() *cobra.Command {
	var after int64

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-deliver stored events to their subscribers",
		Long: `Replay reads the event log in sequence order and delivers every envelope
after --after to its subscribers synchronously. Each delivery runs under the
tenant stamped on the envelope. Subscribers are idempotent per event id.

Prints the last delivered sequence; pass it as --after to resume.`,
		Args: cobra.NoArgs,
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

			last, err := a.Replay(ctx, after)
			if _, perr := fmt.Fprintln(cmd.OutOrStdout(), last); perr != nil && err == nil {
				err = perr
			}
			return err
		},
	}
	cmd.Flags().Int64Var(&after, "after", 0, "replay events with a sequence greater than this")
	return cmd
}

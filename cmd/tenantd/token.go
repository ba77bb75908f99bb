package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/tenantguard/pkg/config"
	"github.com/dmitrymomot/tenantguard/pkg/identity"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

type tokenConfig struct {
	Secret   string `env:"AUTH_JWT_SECRET,required"`
	Issuer   string `env:"AUTH_JWT_ISSUER"`
	Audience string `env:"AUTH_JWT_AUDIENCE"`
}

func newTokenCommand() *cobra.Command {
	var (
		tenantID string
		actor    string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := tenant.Parse(tenantID)
			if err != nil {
				return fmt.Errorf("--tenant: %w", err)
			}

			var cfg tokenConfig
			if err := config.Load(&cfg); err != nil {
				return err
			}
			var opts []identity.JWTOption
			if cfg.Issuer != "" {
				opts = append(opts, identity.WithIssuer(cfg.Issuer))
			}
			if cfg.Audience != "" {
				opts = append(opts, identity.WithAudience(cfg.Audience))
			}
			issuer, err := identity.NewJWTResolver([]byte(cfg.Secret), opts...)
			if err != nil {
				return err
			}

			token, err := issuer.Issue(tenant.Principal{TenantID: id, Actor: actor}, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&tenantID, "tenant", "", "tenant id (uuid)")
	cmd.Flags().StringVar(&actor, "actor", "", "actor recorded as the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime; zero issues a token without expiry")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

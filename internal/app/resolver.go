package app

import (
	"log/slog"

	"github.com/dmitrymomot/tenantguard/pkg/identity"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// NewResolver builds the credential resolver described by cfg: JWT when a
// secret is configured, the static table otherwise. A positive CacheTTL puts
// cache in front of it; a nil cache means an in-process one.
func NewResolver(cfg Config, cache identity.Cache, log *slog.Logger) (tenant.Resolver, error) {
	var (
		base tenant.Resolver
		err  error
	)
	if cfg.JWTSecret != "" {
		var opts []identity.JWTOption
		if cfg.JWTIssuer != "" {
			opts = append(opts, identity.WithIssuer(cfg.JWTIssuer))
		}
		if cfg.JWTAudience != "" {
			opts = append(opts, identity.WithAudience(cfg.JWTAudience))
		}
		base, err = identity.NewJWTResolver([]byte(cfg.JWTSecret), opts...)
	} else {
		base, err = identity.ParseStatic(cfg.StaticCredentials)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheTTL <= 0 {
		return base, nil
	}
	return identity.NewCachingResolver(base, cache, cfg.CacheTTL, identity.WithCachingLogger(log))
}

package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantguard/internal/app"
	"github.com/dmitrymomot/tenantguard/pkg/identity"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

func TestNewResolver_JWT(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.JWTIssuer = "tenantd"
	cache := identity.NewMemoryCache(10)

	r, err := app.NewResolver(cfg, cache, nil)
	require.NoError(t, err)
	require.IsType(t, &identity.CachingResolver{}, r)

	issuer, err := identity.NewJWTResolver([]byte(secret), identity.WithIssuer("tenantd"))
	require.NoError(t, err)
	id := tenant.New()
	token, err := issuer.Issue(tenant.Principal{TenantID: id, Actor: "alice"}, time.Hour)
	require.NoError(t, err)

	p, err := r.ResolveTenant(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, id, p.TenantID)
	assert.Equal(t, "alice", p.Actor)
	assert.Equal(t, 1, cache.Len())

	_, err = r.ResolveTenant(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestNewResolver_StaticWithoutCache(t *testing.T) {
	t.Parallel()

	id := tenant.New()
	cfg := validConfig()
	cfg.JWTSecret = ""
	cfg.StaticCredentials = "dev-key=" + id.String() + "/dev"
	cfg.CacheTTL = 0

	r, err := app.NewResolver(cfg, nil, nil)
	require.NoError(t, err)
	require.IsType(t, &identity.StaticResolver{}, r)

	p, err := r.ResolveTenant(context.Background(), "dev-key")
	require.NoError(t, err)
	assert.Equal(t, tenant.Principal{TenantID: id, Actor: "dev"}, p)
}

func TestNewResolver_Invalid(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.JWTSecret = ""
	cfg.StaticCredentials = "dev-key=not-a-uuid"
	_, err := app.NewResolver(cfg, nil, nil)
	assert.ErrorIs(t, err, identity.ErrInvalidStaticEntry)

	cfg = validConfig()
	cfg.JWTSecret = "short"
	_, err = app.NewResolver(cfg, nil, nil)
	assert.ErrorIs(t, err, identity.ErrWeakSecret)
}

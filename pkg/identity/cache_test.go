package identity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantguard/pkg/identity"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryCache_TTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newClock()
	c := identity.NewMemoryCache(10, identity.WithCacheClock(clk.Now))
	p := tenant.Principal{TenantID: tenant.New()}

	require.NoError(t, c.Set(ctx, "k", p, time.Minute))
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, p, got)

	clk.Advance(time.Minute)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_NonPositiveTTLIsNotStored(t *testing.T) {
	t.Parallel()

	c := identity.NewMemoryCache(10)
	require.NoError(t, c.Set(context.Background(), "k", tenant.Principal{TenantID: tenant.New()}, 0))
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := identity.NewMemoryCache(2)
	p := tenant.Principal{TenantID: tenant.New()}

	require.NoError(t, c.Set(ctx, "a", p, time.Hour))
	require.NoError(t, c.Set(ctx, "b", p, time.Hour))
	_, ok := c.Get(ctx, "a")
	require.True(t, ok)

	require.NoError(t, c.Set(ctx, "c", p, time.Hour))

	_, ok = c.Get(ctx, "b")
	assert.False(t, ok, "b was least recently used")
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryCache_DeleteAndPurge(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newClock()
	c := identity.NewMemoryCache(10, identity.WithCacheClock(clk.Now))
	p := tenant.Principal{TenantID: tenant.New()}

	require.NoError(t, c.Set(ctx, "short", p, time.Second))
	require.NoError(t, c.Set(ctx, "long", p, time.Hour))
	require.NoError(t, c.Set(ctx, "gone", p, time.Hour))
	require.NoError(t, c.Delete(ctx, "gone"))

	clk.Advance(time.Minute)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 1, c.Len())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestMemoryCache_Janitor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := identity.NewMemoryCache(10)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Set(ctx, "k", tenant.Principal{TenantID: tenant.New()}, 10*time.Millisecond))
	c.StartJanitor(5 * time.Millisecond)

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
}

package identity

import (
	"context"
	"encoding/hex"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/dmitrymomot/tenantguard/pkg/logger"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// CachingResolver memoizes a Resolver. Keys are BLAKE2b-256 fingerprints,
// so raw credentials never reach the cache. Failures are not cached.
type CachingResolver struct {
	next   tenant.Resolver
	cache  Cache
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// CachingOption configures a CachingResolver.
type CachingOption func(*CachingResolver)

// WithCachingClock replaces time.Now for expiry.
func WithCachingClock(now func() time.Time) CachingOption {
	return func(r *CachingResolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithCachingLogger sets the logger. Nil keeps the default.
func WithCachingLogger(l *slog.Logger) CachingOption {
	return func(r *CachingResolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewCachingResolver wraps next. A nil cache falls back to a MemoryCache of
// DefaultCacheSize entries.
func NewCachingResolver(next tenant.Resolver, cache Cache, ttl time.Duration, opts ...CachingOption) (*CachingResolver, error) {
	if next == nil {
		return nil, ErrNilResolver
	}
	if cache == nil {
		cache = NewMemoryCache(DefaultCacheSize)
	}
	r := &CachingResolver{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ResolveTenant implements tenant.Resolver.
func (r *CachingResolver) ResolveTenant(ctx context.Context, credential string) (tenant.Principal, error) {
	key := Fingerprint(credential)

	if p, ok := r.cache.Get(ctx, key); ok {
		if p.ExpiresAt.IsZero() || r.now().Before(p.ExpiresAt) {
			return p, nil
		}
		_ = r.cache.Delete(ctx, key)
	}

	p, err := r.next.ResolveTenant(ctx, credential)
	if err != nil {
		return tenant.Principal{}, err
	}

	ttl := r.ttl
	if !p.ExpiresAt.IsZero() {
		ttl = min(ttl, p.ExpiresAt.Sub(r.now()))
	}
	if ttl > 0 {
		if err := r.cache.Set(ctx, key, p, ttl); err != nil {
			r.logger.WarnContext(ctx, "principal cache store failed",
				logger.Component("identity"), logger.Error(err))
		}
	}
	return p, nil
}

// Fingerprint returns the hex BLAKE2b-256 digest of a credential.
func Fingerprint(credential string) string {
	sum := blake2b.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

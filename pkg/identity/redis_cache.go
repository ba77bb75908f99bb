package identity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/tenantguard/pkg/logger"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// DefaultRedisPrefix namespaces principal entries in Redis.
const DefaultRedisPrefix = "tenantguard:principal:"

// RedisCache stores principals as JSON values with a native TTL.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// RedisCacheOption configures a RedisCache.
type RedisCacheOption func(*RedisCache)

func WithRedisPrefix(prefix string) RedisCacheOption {
	return func(c *RedisCache) { c.prefix = prefix }
}

func WithRedisLogger(l *slog.Logger) RedisCacheOption {
	return func(c *RedisCache) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewRedisCache(client redis.UniversalClient, opts ...RedisCacheOption) *RedisCache {
	c := &RedisCache{
		client: client,
		prefix: DefaultRedisPrefix,
		logger: logger.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get treats every Redis or decoding error as a miss so that an outage
// degrades to resolving each credential.
func (c *RedisCache) Get(ctx context.Context, key string) (tenant.Principal, bool) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "principal cache lookup failed",
				logger.Component("identity"), logger.Error(err))
		}
		return tenant.Principal{}, false
	}
	var p tenant.Principal
	if err := json.Unmarshal(raw, &p); err != nil || p.TenantID.IsZero() {
		_ = c.client.Del(ctx, c.prefix+key).Err()
		return tenant.Principal{}, false
	}
	return p, true
}

func (c *RedisCache) Set(ctx context.Context, key string, p tenant.Principal, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return errors.Join(ErrCacheUnavailable, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return errors.Join(ErrCacheUnavailable, err)
	}
	return nil
}

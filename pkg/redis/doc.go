// Package redis connects the optional shared principal cache.
//
// Connect parses REDIS_URL, pings with bounded retries and returns a
// go-redis client; Healthcheck wraps Ping for readiness probes. The client is
// handed to identity.NewRedisCache.
package redis

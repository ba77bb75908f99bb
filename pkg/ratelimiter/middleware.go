package ratelimiter

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrymomot/tenantguard/pkg/logger"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// Response headers set on every limited request.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	logger   *slog.Logger
	now      func() time.Time
	failOpen bool
}

func WithLogger(l *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithClock(now func() time.Time) MiddlewareOption {
	return func(c *middlewareConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithFailClosed rejects requests when the store cannot be reached. By
// default they are let through and the failure is logged.
func WithFailClosed() MiddlewareOption {
	return func(c *middlewareConfig) { c.failOpen = false }
}

// Middleware spends one token of the active tenant's bucket per request.
// It must run behind the tenant middleware; requests without an active
// tenant are passed to onError with tenant.ErrMissingContext. Exhausted
// quotas are passed to onError with ErrLimitExceeded.
func Middleware(limiter Limiter, onError tenant.ErrorHandler, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{logger: logger.Discard(), now: time.Now, failOpen: true}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := tenant.Current(r.Context())
			if err != nil {
				onError(w, r, err)
				return
			}

			result, err := limiter.Allow(r.Context(), Key(id))
			if err != nil {
				if cfg.failOpen {
					cfg.logger.WarnContext(r.Context(), "rate limit skipped", logger.Component("ratelimiter"), logger.Error(err))
					next.ServeHTTP(w, r)
					return
				}
				onError(w, r, err)
				return
			}

			h := w.Header()
			h.Set(HeaderLimit, strconv.Itoa(result.Limit))
			h.Set(HeaderRemaining, strconv.Itoa(max(0, result.Remaining)))
			h.Set(HeaderReset, strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed() {
				retry := result.RetryAfter(cfg.now())
				h.Set(HeaderRetryAfter, strconv.Itoa(int((retry+time.Second-1)/time.Second)))
				onError(w, r, ErrLimitExceeded)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Key is the bucket key of a tenant.
func Key(id tenant.ID) string {
	return "tenant:" + id.String()
}

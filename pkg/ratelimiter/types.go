package ratelimiter

import "time"

// Result is the outcome of a quota check.
type Result struct {
	Limit     int       // bucket capacity
	Remaining int       // tokens left; negative when denied
	ResetAt   time.Time // next refill
}

// Allowed reports whether the checked request fits the quota.
func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter is how long a denied caller should wait. Zero when allowed.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed() {
		return 0
	}
	return max(r.ResetAt.Sub(now), 0)
}

// Config is the token bucket of one tenant. A zero Capacity disables
// limiting in the service wiring.
type Config struct {
	Capacity       int           `env:"TENANT_RATE_CAPACITY" envDefault:"100"`
	RefillRate     int           `env:"TENANT_RATE_REFILL" envDefault:"10"`
	RefillInterval time.Duration `env:"TENANT_RATE_INTERVAL" envDefault:"1s"`
}

// Enabled reports whether c describes a limit.
func (c Config) Enabled() bool { return c.Capacity > 0 }

func (c Config) validate() error {
	switch {
	case c.Capacity <= 0:
		return errorf("capacity must be positive, got %d", c.Capacity)
	case c.RefillRate <= 0:
		return errorf("refill rate must be positive, got %d", c.RefillRate)
	case c.RefillInterval <= 0:
		return errorf("refill interval must be positive, got %v", c.RefillInterval)
	}
	return nil
}

// refill returns the token count after the intervals elapsed since last,
// and the time the last whole interval ended.
func (c Config) refill(tokens int, last, now time.Time) (int, time.Time) {
	elapsed := now.Sub(last)
	if elapsed < c.RefillInterval {
		return tokens, last
	}
	// Capped so a long idle period cannot overflow.
	intervals := min(int64(elapsed/c.RefillInterval), int64(c.Capacity/c.RefillRate+1))
	tokens = min(tokens+int(intervals)*c.RefillRate, c.Capacity)
	if tokens == c.Capacity {
		return tokens, now
	}
	return tokens, last.Add(time.Duration(intervals) * c.RefillInterval)
}

package dbsession

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

const sweepBoundary = "pool"

// Sweeper periodically checks idle pooled connections for a tenant binding
// left behind by code that bypassed the Binder. Stale bindings are cleared
// and reported as leaks.
type Sweeper struct {
	src      IdleSource
	observer tenant.Observer
	logger   *slog.Logger
	interval time.Duration
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets how often Run sweeps. Default is one minute.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSweepObserver sets the observer leaks are reported to.
func WithSweepObserver(o tenant.Observer) SweeperOption {
	return func(s *Sweeper) {
		s.observer = tenant.ObserverOrNop(o)
	}
}

// WithSweepLogger sets the logger.
func WithSweepLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSweeper returns a Sweeper over src.
func NewSweeper(src IdleSource, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		src:      src,
		observer: tenant.NopObserver{},
		logger:   slog.Default(),
		interval: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep checks every idle connection once and returns how many held a stale binding.
func (s *Sweeper) Sweep(ctx context.Context) int {
	stale := 0
	for _, conn := range s.src.AcquireIdle(ctx) {
		if s.check(ctx, conn) {
			stale++
		}
	}
	return stale
}

func (s *Sweeper) check(ctx context.Context, conn Conn) bool {
	defer conn.Release()

	value, err := Probe(ctx, conn)
	if err != nil {
		s.logger.WarnContext(ctx, "probe failed, discarding connection", slog.String("error", err.Error()))
		conn.Discard(ctx)
		return false
	}
	if value == "" {
		return false
	}

	s.observer.Leak(ctx, sweepBoundary, 1)
	if err := Reset(ctx, conn); err != nil {
		s.logger.WarnContext(ctx, "reset failed, discarding connection", slog.String("error", err.Error()))
		conn.Discard(ctx)
	}
	return true
}

// Run sweeps on every tick until ctx is done. The returned func fits errgroup.Go.
func (s *Sweeper) Run(ctx context.Context) func() error {
	return func() error {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := s.Sweep(ctx); n > 0 {
					s.logger.WarnContext(ctx, "cleared stale tenant bindings", slog.Int("connections", n))
				}
			}
		}
	}
}

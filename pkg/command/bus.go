package command

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// Bus dispatches commands to their handlers through a fixed interceptor chain:
//
//	EnforceTenant -> middleware registered with Use, in order -> handler
//
// Tenant enforcement is always outermost and cannot be removed.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[string]HandlerFunc
	middleware []Middleware
	enforce    Middleware
	logger     *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithObserver sets the observer notified about rejected commands.
func WithObserver(o tenant.Observer) Option {
	return func(b *Bus) {
		b.enforce = EnforceTenant(o)
	}
}

// WithLogger sets the bus logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBus creates an empty command bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		handlers: make(map[string]HandlerFunc),
		enforce:  EnforceTenant(nil),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Use appends middleware that runs after tenant enforcement and before the handler.
func (b *Bus) Use(mw ...Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, m := range mw {
		if m != nil {
			b.middleware = append(b.middleware, m)
		}
	}
}

// Handle registers fn as the handler for commands of type C.
func Handle[C Command](b *Bus, fn func(ctx context.Context, cmd C) error) error {
	var zero C
	name := Name(zero)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerExists, name)
	}

	b.handlers[name] = func(ctx context.Context, cmd Command) error {
		typed, ok := cmd.(C)
		if !ok {
			return fmt.Errorf("%w: %s", ErrHandlerNotFound, Name(cmd))
		}
		return fn(ctx, typed)
	}
	return nil
}

// Dispatch runs cmd through the interceptor chain and its handler, blocking
// until the handler returns.
func (b *Bus) Dispatch(ctx context.Context, cmd Command) error {
	if isNil(cmd) {
		return ErrNilCommand
	}

	b.mu.RLock()
	middleware := slices.Clone(b.middleware)
	b.mu.RUnlock()

	final := b.route
	for i := len(middleware) - 1; i >= 0; i-- {
		final = middleware[i](final)
	}
	final = b.enforce(final)

	if err := final(ctx, cmd); err != nil {
		b.logger.DebugContext(ctx, "command failed",
			slog.String("command", Name(cmd)),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

func (b *Bus) route(ctx context.Context, cmd Command) error {
	name := Name(cmd)

	b.mu.RLock()
	h, ok := b.handlers[name]
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrHandlerNotFound, name)
	}
	return h(ctx, cmd)
}

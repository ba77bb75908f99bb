package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantguard/pkg/logger"
	"github.com/dmitrymomot/tenantguard/pkg/queue"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// Enqueuer is satisfied by *queue.Enqueuer.
type Enqueuer interface {
	Enqueue(ctx context.Context, name string, payload any, opts ...queue.EnqueueOption) (uuid.UUID, error)
}

// Bus routes envelopes to subscribed handlers. Publish only enqueues; the
// handlers run on a queue.Worker through QueueHandlers, each one wrapped by
// Propagate.
type Bus struct {
	enqueuer Enqueuer
	observer tenant.Observer
	logger   *slog.Logger
	opts     []queue.EnqueueOption
	outbox   bool

	mu     sync.RWMutex
	byType map[string][]Handler
	byName map[string]Handler
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBusObserver reports propagation failures and leaks of the handlers.
func WithBusObserver(o tenant.Observer) BusOption {
	return func(b *Bus) {
		b.observer = tenant.ObserverOrNop(o)
	}
}

// WithBusLogger sets the logger handed to every Propagate wrapper.
func WithBusLogger(l *slog.Logger) BusOption {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithEnqueueOptions sets options applied to every delivery task.
func WithEnqueueOptions(opts ...queue.EnqueueOption) BusOption {
	return func(b *Bus) {
		b.opts = append(b.opts, opts...)
	}
}

// WithOutbox declares that the enqueuer's storage joins the dbsession
// transaction carried by ctx, as queue.PostgresStorage does. Emitters then
// enqueue deliveries inside the transaction that stores the event.
func WithOutbox() BusOption {
	return func(b *Bus) {
		b.outbox = true
	}
}

// NewBus returns a Bus that delivers through enq.
func NewBus(enq Enqueuer, opts ...BusOption) *Bus {
	b := &Bus{
		enqueuer: enq,
		observer: tenant.NopObserver{},
		logger:   slog.Default(),
		byType:   make(map[string][]Handler),
		byName:   make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(logger.Component("event.bus"))
	return b
}

// Subscribe registers handlers. Names must be unique across the bus.
func (b *Bus) Subscribe(handlers ...Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, h := range handlers {
		if h == nil {
			return ErrNilHandler
		}
		if _, ok := b.byName[h.Name()]; ok {
			return fmt.Errorf("%w: %s", ErrHandlerExists, h.Name())
		}
		b.byName[h.Name()] = h
		b.byType[h.EventType()] = append(b.byType[h.EventType()], h)
	}
	return nil
}

// Handlers returns the handlers subscribed to eventType.
func (b *Bus) Handlers(eventType string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.byType[eventType])
}

// Publish enqueues one delivery task per handler subscribed to env.Type.
// The envelope travels whole; nothing from ctx other than cancellation and
// the transaction used by the queue storage reaches the handler.
func (b *Bus) Publish(ctx context.Context, env Envelope) error {
	var errs []error
	for _, h := range b.Handlers(env.Type) {
		if _, err := b.enqueuer.Enqueue(ctx, h.Name(), env, b.opts...); err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s for %s: %w", env.ID, h.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// JoinsTransaction reports whether Publish writes within the caller's
// transaction. It makes Bus a TxPublisher.
func (b *Bus) JoinsTransaction() bool { return b.outbox }

// QueueHandlers returns one queue handler per subscription, each running the
// subscription through Propagate.
func (b *Bus) QueueHandlers() []queue.Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.byName))
	for name := range b.byName {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]queue.Handler, 0, len(names))
	for _, name := range names {
		wrapped := Propagate(b.byName[name], b.observer, b.logger)
		out = append(out, queue.NewTaskHandler(name, wrapped.Handle))
	}
	return out
}

// Deliver runs every handler subscribed to env.Type synchronously, each
// through Propagate.
func (b *Bus) Deliver(ctx context.Context, env Envelope) error {
	var errs []error
	for _, h := range b.Handlers(env.Type) {
		if err := Propagate(h, b.observer, b.logger).Handle(ctx, env); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Replay re-delivers stored envelopes with Sequence greater than after,
// batch at a time, and returns the last sequence delivered. It stops at the
// first failing envelope. Each delivery's tenant comes from the stored stamp.
func (b *Bus) Replay(ctx context.Context, store Store, after int64, batch int) (int64, error) {
	if batch <= 0 {
		batch = 100
	}
	last := after
	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		envs, err := store.Load(ctx, last, batch)
		if err != nil {
			return last, err
		}
		for _, env := range envs {
			if err := b.Deliver(ctx, env); err != nil {
				return last, fmt.Errorf("event: replay sequence %d: %w", env.Sequence, err)
			}
			last = env.Sequence
		}
		if len(envs) < batch {
			return last, nil
		}
	}
}

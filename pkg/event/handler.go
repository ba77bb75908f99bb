package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dmitrymomot/tenantguard/pkg/logger"
	"github.com/dmitrymomot/tenantguard/pkg/requestid"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// Handler reacts to envelopes of one type. Name must be unique per bus; it
// is the queue task name deliveries are enqueued under.
type Handler interface {
	Name() string
	EventType() string
	Handle(ctx context.Context, env Envelope) error
}

// NewHandler returns a Handler that decodes the payload into T.
func NewHandler[T any](name, eventType string, fn func(ctx context.Context, payload T, meta Metadata) error) Handler {
	return &typedHandler[T]{name: name, eventType: eventType, fn: fn}
}

type typedHandler[T any] struct {
	name      string
	eventType string
	fn        func(context.Context, T, Metadata) error
}

func (h *typedHandler[T]) Name() string      { return h.name }
func (h *typedHandler[T]) EventType() string { return h.eventType }

func (h *typedHandler[T]) Handle(ctx context.Context, env Envelope) error {
	if env.Type != h.eventType {
		return fmt.Errorf("%w: %s got %s", ErrUnexpectedType, h.name, env.Type)
	}
	var payload T
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidPayload, h.name, err)
	}
	return h.fn(ctx, payload, env.Metadata)
}

// Propagate wraps h so it runs under the identity stamped on the envelope
// and nothing else.
//
// Envelopes without a tenant are rejected. The handler gets a detached
// context: a new stack holding only the stamped tenant, the stamped actor and
// correlation id. Whatever the outcome (return, error, panic or
// cancellation) the stamp is released, the stack is reset and any leftover
// depth is reported as a leak.
func Propagate(h Handler, observer tenant.Observer, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}
	return &propagated{next: h, observer: tenant.ObserverOrNop(observer), logger: log}
}

type propagated struct {
	next     Handler
	observer tenant.Observer
	logger   *slog.Logger
}

func (p *propagated) Name() string      { return p.next.Name() }
func (p *propagated) EventType() string { return p.next.EventType() }

func (p *propagated) Handle(ctx context.Context, env Envelope) error {
	op := "event:" + p.next.Name()

	if env.Metadata.TenantID.IsZero() {
		p.observer.MissingContext(ctx, op)
		return fmt.Errorf("%s: envelope %s has no tenant: %w", op, env.ID, tenant.ErrMissingContext)
	}

	ctx = tenant.Detach(ctx)
	stack, _ := tenant.StackFrom(ctx)
	frame, err := stack.Push(env.Metadata.TenantID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ctx = tenant.WithActor(ctx, env.Metadata.Actor)
	if env.Metadata.CorrelationID != "" {
		ctx = requestid.WithContext(ctx, env.Metadata.CorrelationID)
	}

	defer func() {
		frame.Release()
		if depth := stack.Reset(); depth > 0 {
			p.observer.Leak(ctx, op, depth)
		}
	}()

	err = p.next.Handle(ctx, env)
	if err != nil {
		p.logger.WarnContext(ctx, "event handler failed",
			logger.Handler(p.next.Name()),
			logger.EventType(env.Type),
			logger.EnvelopeID(env.ID),
			logger.Error(err))
	}
	return err
}

package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantguard/pkg/dbsession"
	"github.com/dmitrymomot/tenantguard/pkg/logger"
	"github.com/dmitrymomot/tenantguard/pkg/requestid"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// Publisher hands a stored envelope to its subscribers.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// TxPublisher is a Publisher whose writes join the dbsession transaction
// carried by ctx. The Emitter publishes through it inside the transaction, so
// an event and its deliveries commit together.
type TxPublisher interface {
	Publisher
	JoinsTransaction() bool
}

// Emitter stamps, stores and publishes events.
type Emitter struct {
	store       Store
	publisher   Publisher
	observer    tenant.Observer
	logger      *slog.Logger
	now         func() time.Time
	correlation func(context.Context) string
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithObserver reports emits without an active tenant, or with a tenant other
// than the one the transaction is bound to.
func WithObserver(o tenant.Observer) EmitterOption {
	return func(e *Emitter) {
		e.observer = tenant.ObserverOrNop(o)
	}
}

// WithLogger sets the logger used for failed deferred publishes.
func WithLogger(l *slog.Logger) EmitterOption {
	return func(e *Emitter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source of Metadata.Timestamp.
func WithClock(now func() time.Time) EmitterOption {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

// WithCorrelation overrides how the correlation id is read from the context.
// The default is requestid.FromContext.
func WithCorrelation(fn func(context.Context) string) EmitterOption {
	return func(e *Emitter) {
		if fn != nil {
			e.correlation = fn
		}
	}
}

// NewEmitter returns an Emitter appending to store and publishing through pub.
// pub may be nil when events are only stored.
func NewEmitter(store Store, pub Publisher, opts ...EmitterOption) (*Emitter, error) {
	if store == nil {
		return nil, ErrStoreUnavailable
	}
	e := &Emitter{
		store:       store,
		publisher:   pub,
		observer:    tenant.NopObserver{},
		logger:      slog.Default(),
		now:         time.Now,
		correlation: requestid.FromContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(logger.Component("event.emitter"))
	return e, nil
}

// Emit stamps payload with the active tenant, the correlation id, the actor
// and the current time, appends it to the store and publishes it.
//
// Emitting without an active tenant fails with tenant.ErrMissingContext.
// Inside a bound transaction the append joins the transaction. A TxPublisher
// that joins it publishes right away and a failure aborts the transaction;
// any other publisher waits for the commit. Either way subscribers never
// observe rolled back events.
func (e *Emitter) Emit(ctx context.Context, eventType string, payload any) (Envelope, error) {
	if eventType == "" {
		return Envelope{}, ErrEmptyType
	}
	op := "event:" + eventType

	id, err := tenant.Current(ctx)
	if err != nil {
		e.observer.MissingContext(ctx, op)
		return Envelope{}, fmt.Errorf("%s: %w", op, err)
	}
	if bound, ok := dbsession.BoundTenant(ctx); ok && bound != id {
		e.observer.ContextMismatch(ctx, op, id, bound)
		return Envelope{}, fmt.Errorf("%s: transaction belongs to another tenant: %w", op, tenant.ErrContextMismatch)
	}

	raw, err := encode(payload)
	if err != nil {
		return Envelope{}, errors.Join(ErrInvalidPayload, err)
	}

	actor, _ := tenant.ActorFromContext(ctx)
	env := Envelope{
		ID:      uuid.New(),
		Type:    eventType,
		Payload: raw,
		Metadata: Metadata{
			TenantID:      id,
			CorrelationID: e.correlation(ctx),
			Actor:         actor,
			Timestamp:     e.now().UTC(),
		},
	}

	if err := e.store.Append(ctx, &env); err != nil {
		return Envelope{}, err
	}
	if e.publisher == nil {
		return env, nil
	}

	if tp, ok := e.publisher.(TxPublisher); ok && tp.JoinsTransaction() {
		if _, inTx := dbsession.TxFrom(ctx); inTx {
			if err := tp.Publish(ctx, env); err != nil {
				return Envelope{}, errors.Join(ErrPublishFailed, err)
			}
			return env, nil
		}
	}

	deferred := dbsession.AfterCommit(ctx, func(ctx context.Context) {
		if err := e.publisher.Publish(ctx, env); err != nil {
			e.logger.ErrorContext(ctx, "failed to publish committed event",
				logger.EventType(env.Type),
				logger.EnvelopeID(env.ID),
				slog.Int64("sequence", env.Sequence),
				logger.Error(err))
		}
	})
	if deferred {
		return env, nil
	}

	if err := e.publisher.Publish(ctx, env); err != nil {
		return env, errors.Join(ErrPublishFailed, err)
	}
	return env, nil
}

func encode(payload any) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, errors.New("raw payload is not valid JSON")
		}
		return raw, nil
	}
	return json.Marshal(payload)
}

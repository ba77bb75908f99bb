package tenant

import "context"

// Observer receives isolation signals. Implementations must not log request
// or event payloads; only identifiers, operation names and depths are passed.
type Observer interface {
	// MissingContext is called when an operation required an identity and none was bound.
	MissingContext(ctx context.Context, op string)

	// ContextMismatch is called when an operation declared a tenant other than the active one.
	ContextMismatch(ctx context.Context, op string, active, declared ID)

	// Leak is called when a stack or connection is found holding an identity
	// at a point where its unit of work should have left it empty.
	Leak(ctx context.Context, boundary string, depth int)

	// BindingFailure is called when the storage session could not be bound.
	BindingFailure(ctx context.Context, op string, err error)
}

// NopObserver discards every signal.
type NopObserver struct{}

func (NopObserver) MissingContext(context.Context, string)          {}
func (NopObserver) ContextMismatch(context.Context, string, ID, ID) {}
func (NopObserver) Leak(context.Context, string, int)               {}
func (NopObserver) BindingFailure(context.Context, string, error)   {}

// ObserverOrNop returns o, or NopObserver when o is nil.
func ObserverOrNop(o Observer) Observer {
	if o == nil {
		return NopObserver{}
	}
	return o
}

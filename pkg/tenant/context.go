package tenant

import (
	"context"
	"log/slog"
)

type (
	stackKey struct{}
	actorKey struct{}
)

// WithStack attaches a new, empty Stack to ctx. Call it at the entry of every
// independent unit of work (request, task, goroutine).
func WithStack(ctx context.Context) (context.Context, *Stack) {
	s := NewStack()
	return context.WithValue(ctx, stackKey{}, s), s
}

// Detach returns a context with a new, empty tenant stack and no actor,
// regardless of what ctx carried. Other values are preserved.
func Detach(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, actorKey{}, "")
	ctx, _ = WithStack(ctx)
	return ctx
}

// StackFrom returns the Stack attached to ctx, if any.
func StackFrom(ctx context.Context) (*Stack, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(stackKey{}).(*Stack)
	return s, ok && s != nil
}

// Enter opens a nested tenant scope. The returned release func must be called
// when the scope ends, typically with defer. If ctx has no stack, one is attached.
func Enter(ctx context.Context, id ID) (context.Context, func(), error) {
	s, ok := StackFrom(ctx)
	if !ok {
		ctx, s = WithStack(ctx)
	}

	f, err := s.Push(id)
	if err != nil {
		return ctx, func() {}, err
	}
	return ctx, f.Release, nil
}

// Current returns the active tenant or ErrMissingContext.
func Current(ctx context.Context) (ID, error) {
	s, ok := StackFrom(ctx)
	if !ok {
		return Nil, ErrMissingContext
	}
	return s.Current()
}

// Peek returns the active tenant, if one is bound.
func Peek(ctx context.Context) (ID, bool) {
	s, ok := StackFrom(ctx)
	if !ok {
		return Nil, false
	}
	return s.Peek()
}

// Depth reports the depth of the stack attached to ctx; zero without a stack.
func Depth(ctx context.Context) int {
	s, ok := StackFrom(ctx)
	if !ok {
		return 0
	}
	return s.Depth()
}

// WithActor records who is acting within the current unit of work.
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by WithActor.
func ActorFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	actor, ok := ctx.Value(actorKey{}).(string)
	return actor, ok && actor != ""
}

// LoggerExtractor returns a ContextExtractor for the logger that adds the active tenant id.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id, ok := Peek(ctx); ok {
			return slog.String("tenant_id", id.String()), true
		}
		return slog.Attr{}, false
	}
}

// ActorLoggerExtractor returns a ContextExtractor for the logger that adds the actor.
func ActorLoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if actor, ok := ActorFromContext(ctx); ok {
			return slog.String("actor", actor), true
		}
		return slog.Attr{}, false
	}
}

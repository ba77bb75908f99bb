package queue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler processes the tasks enqueued under its name.
type Handler interface {
	Name() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

// HandlerFunc handles a raw payload.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// NewHandler returns a Handler registered under name.
func NewHandler(name string, fn HandlerFunc) Handler {
	return &funcHandler{name: name, fn: fn}
}

// NewTaskHandler returns a Handler that decodes the payload into T.
func NewTaskHandler[T any](name string, fn func(ctx context.Context, payload T) error) Handler {
	return NewHandler(name, func(ctx context.Context, raw json.RawMessage) error {
		var payload T
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("queue: decode payload for %s: %w", name, err)
		}
		return fn(ctx, payload)
	})
}

type funcHandler struct {
	name string
	fn   HandlerFunc
}

func (h *funcHandler) Name() string { return h.name }

func (h *funcHandler) Handle(ctx context.Context, payload json.RawMessage) error {
	return h.fn(ctx, payload)
}

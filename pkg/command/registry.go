package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Factory decodes a payload into a concrete command.
type Factory func(payload json.RawMessage) (Command, error)

// Registry is a closed whitelist of command names that external configuration
// (workflow steps, admin tooling) may refer to. Only registered names can be
// built; nothing is instantiated by reflection on untrusted input.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register whitelists name as a JSON-encoded command of type C.
func Register[C Command](r *Registry, name string) error {
	return r.RegisterFactory(name, func(payload json.RawMessage) (Command, error) {
		var cmd C
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return nil, errors.Join(ErrInvalidPayload, err)
		}
		if isNil(cmd) {
			return nil, fmt.Errorf("%w: %s decodes to a nil command", ErrInvalidPayload, name)
		}
		return cmd, nil
	})
}

// RegisterFactory whitelists name with a custom factory.
func (r *Registry) RegisterFactory(name string, f Factory) error {
	if name == "" || f == nil {
		return errors.New("command: registry entry needs a name and a factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrHandlerExists, name)
	}
	r.factories[name] = f
	return nil
}

// Build constructs the command registered under name.
func (r *Registry) Build(name string, payload json.RawMessage) (Command, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	cmd, err := f(payload)
	if err != nil {
		return nil, err
	}
	if isNil(cmd) {
		return nil, ErrNilCommand
	}
	return cmd, nil
}

// Dispatch builds the named command and dispatches it on bus.
func (r *Registry) Dispatch(ctx context.Context, bus *Bus, name string, payload json.RawMessage) error {
	cmd, err := r.Build(name, payload)
	if err != nil {
		return err
	}
	return bus.Dispatch(ctx, cmd)
}

// Names lists the whitelisted names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

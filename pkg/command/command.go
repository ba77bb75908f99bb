package command

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// Command is a tenant-scoped business command. The declared tenant is what
// the enforcement interceptor validates against the active context, so a
// payload type without it cannot be dispatched at all.
type Command interface {
	TenantID() tenant.ID
}

// HandlerFunc executes a command.
type HandlerFunc func(ctx context.Context, cmd Command) error

// Middleware wraps a HandlerFunc with extra behaviour.
type Middleware func(next HandlerFunc) HandlerFunc

// Name returns the name a command is registered and dispatched under.
func Name(cmd any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", cmd), "*")
}

// isNil reports whether cmd is nil or an interface holding a nil pointer.
func isNil(cmd Command) bool {
	if cmd == nil {
		return true
	}
	v := reflect.ValueOf(cmd)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

package command

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// EnforceTenant rejects a command unless its declared tenant equals the
// active one. Rejections happen before the next handler runs, so a rejected
// command performs no storage I/O. Commands declaring the zero tenant never
// match.
func EnforceTenant(observer tenant.Observer) Middleware {
	observer = tenant.ObserverOrNop(observer)

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, cmd Command) error {
			op := "command:" + Name(cmd)

			active, err := tenant.Current(ctx)
			if err != nil {
				observer.MissingContext(ctx, op)
				return fmt.Errorf("%s: %w", op, tenant.ErrMissingContext)
			}

			declared := cmd.TenantID()
			if declared != active {
				observer.ContextMismatch(ctx, op, active, declared)
				return fmt.Errorf("%s: %w", op, tenant.ErrContextMismatch)
			}

			return next(ctx, cmd)
		}
	}
}

// Package tenant captures which tenant a unit of work acts for and keeps that
// identity available, fail-closed, for the rest of the pipeline.
//
// The identity lives on a Stack attached to the context.Context of a unit of
// work. Nested scopes push further frames; every push returns a Frame guard
// whose Release ends the scope deterministically, so cleanup never depends on
// garbage collection. Reads never fall back to a default: Current returns
// ErrMissingContext when nothing is bound.
//
// # Usage
//
//	mw := tenant.Middleware(tenant.BearerExtractor, resolver,
//		tenant.WithObserver(monitor),
//		tenant.WithSkipPaths("/healthz", "/metrics"),
//	)
//	router.Use(mw)
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//		id, err := tenant.Current(r.Context())
//		if err != nil {
//			// fail closed
//		}
//	}
//
// Work that runs outside the request (goroutines, queue tasks) must start from
// Detach or WithStack and enter its own scope:
//
//	ctx = tenant.Detach(ctx)
//	ctx, release, err := tenant.Enter(ctx, id)
//	if err != nil {
//		return err
//	}
//	defer release()
//
// # Leak detection
//
// Stack.Depth is the probe: at the end of a unit of work it must be zero. The
// HTTP middleware and the event propagation interceptor check it on exit,
// report non-zero values through an Observer and clear the stack.
package tenant

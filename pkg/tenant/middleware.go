package tenant

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Middleware establishes the tenant scope of every request. The credential is
// extracted and resolved once; the resulting identity is pushed onto a stack
// owned by this request alone and released when the handler returns. A stack
// that is not empty after release is reported as a leak and cleared.
func Middleware(extract CredentialExtractor, resolver Resolver, opts ...Option) func(http.Handler) http.Handler {
	if extract == nil || resolver == nil {
		panic("tenant: middleware requires a credential extractor and a resolver")
	}

	cfg := &config{
		errorHandler: defaultErrorHandler,
		observer:     NopObserver{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range cfg.skipPaths {
				if strings.HasPrefix(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			credential, err := extract(r)
			if err != nil {
				cfg.errorHandler(w, r, errors.Join(ErrUnauthenticated, err))
				return
			}
			if credential == "" {
				cfg.errorHandler(w, r, ErrUnauthenticated)
				return
			}

			principal, err := resolver.ResolveTenant(r.Context(), credential)
			if err != nil {
				cfg.errorHandler(w, r, errors.Join(ErrUnauthenticated, err))
				return
			}

			ctx, stack := WithStack(r.Context())
			frame, err := stack.Push(principal.TenantID)
			if err != nil {
				cfg.errorHandler(w, r, err)
				return
			}
			ctx = WithActor(ctx, principal.Actor)

			defer func() {
				frame.Release()
				if depth := stack.Reset(); depth != 0 {
					cfg.observer.Leak(ctx, boundary(r), depth)
					cfg.logger.WarnContext(ctx, "tenant context leaked at request boundary",
						slog.Int("depth", depth))
				}
			}()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// boundary labels a request by method and route pattern. Raw paths carry ids
// and would give the leak counter unbounded cardinality.
func boundary(r *http.Request) string {
	label := "http:" + r.Method
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			label += " " + pattern
		}
	}
	return label
}

// RequireTenant rejects requests that reach it without an active identity.
func RequireTenant(errorHandler ErrorHandler) func(http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = defaultErrorHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := Current(r.Context()); err != nil {
				errorHandler(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package tenant_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

func staticResolver(tokens map[string]tenant.Principal) tenant.Resolver {
	return tenant.ResolverFunc(func(_ context.Context, credential string) (tenant.Principal, error) {
		p, ok := tokens[credential]
		if !ok {
			return tenant.Principal{}, errors.New("unknown token")
		}
		return p, nil
	})
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	acme := tenant.New()
	resolver := staticResolver(map[string]tenant.Principal{
		"token-acme": {TenantID: acme, Actor: "alice"},
		"token-zero": {},
	})

	t.Run("binds resolved tenant for the request", func(t *testing.T) {
		t.Parallel()

		mw := tenant.Middleware(tenant.BearerExtractor, resolver)
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := tenant.Current(r.Context())
			require.NoError(t, err)
			assert.Equal(t, acme, id)

			actor, ok := tenant.ActorFromContext(r.Context())
			require.True(t, ok)
			assert.Equal(t, "alice", actor)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/records", nil)
		req.Header.Set("Authorization", "Bearer token-acme")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing credential is unauthorized", func(t *testing.T) {
		t.Parallel()

		called := false
		mw := tenant.Middleware(tenant.BearerExtractor, resolver)
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/records", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.False(t, called)
	})

	t.Run("resolver error is unauthorized", func(t *testing.T) {
		t.Parallel()

		mw := tenant.Middleware(tenant.BearerExtractor, resolver)
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))

		req := httptest.NewRequest(http.MethodGet, "/records", nil)
		req.Header.Set("Authorization", "Bearer forged")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("principal without tenant is rejected", func(t *testing.T) {
		t.Parallel()

		mw := tenant.Middleware(tenant.BearerExtractor, resolver)
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))

		req := httptest.NewRequest(http.MethodGet, "/records", nil)
		req.Header.Set("Authorization", "Bearer token-zero")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("skip paths run without identity", func(t *testing.T) {
		t.Parallel()

		mw := tenant.Middleware(tenant.BearerExtractor, resolver, tenant.WithSkipPaths("/healthz"))
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, err := tenant.Current(r.Context())
			assert.ErrorIs(t, err, tenant.ErrMissingContext)
			w.WriteHeader(http.StatusNoContent)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("custom error handler", func(t *testing.T) {
		t.Parallel()

		var got error
		mw := tenant.Middleware(tenant.BearerExtractor, resolver,
			tenant.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
				got = err
				w.WriteHeader(http.StatusTeapot)
			}))
		handler := mw(http.NotFoundHandler())

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusTeapot, w.Code)
		assert.ErrorIs(t, got, tenant.ErrUnauthenticated)
	})

	t.Run("leaked frames are reported and cleared", func(t *testing.T) {
		t.Parallel()

		obs := newRecordingObserver()
		var stack *tenant.Stack

		mw := tenant.Middleware(tenant.BearerExtractor, resolver, tenant.WithObserver(obs))
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stack, _ = tenant.StackFrom(r.Context())
			// Opens a nested scope and forgets to release it.
			_, _, err := tenant.Enter(r.Context(), tenant.New())
			require.NoError(t, err)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodPost, "/records", nil)
		req.Header.Set("Authorization", "Bearer token-acme")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		require.NotNil(t, stack)
		assert.Zero(t, stack.Depth())
		assert.Equal(t, 1, obs.leakCount())
		assert.Contains(t, obs.leaks, "http:POST")
	})

	t.Run("leak boundary uses the route pattern", func(t *testing.T) {
		t.Parallel()

		obs := newRecordingObserver()
		r := chi.NewRouter()
		r.Use(tenant.Middleware(tenant.BearerExtractor, resolver, tenant.WithObserver(obs)))
		r.Route("/records", func(r chi.Router) {
			r.Get("/{id}", func(w http.ResponseWriter, r *http.Request) {
				_, _, err := tenant.Enter(r.Context(), tenant.New())
				require.NoError(t, err)
				w.WriteHeader(http.StatusOK)
			})
		})

		for range 3 {
			req := httptest.NewRequest(http.MethodGet, "/records/"+tenant.New().String(), nil)
			req.Header.Set("Authorization", "Bearer token-acme")
			r.ServeHTTP(httptest.NewRecorder(), req)
		}

		assert.Equal(t, map[string]int{"http:GET /records/{id}": 3}, obs.snapshot())
	})

	t.Run("balanced request reports no leak", func(t *testing.T) {
		t.Parallel()

		obs := newRecordingObserver()
		mw := tenant.Middleware(tenant.BearerExtractor, resolver, tenant.WithObserver(obs))
		handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, release, err := tenant.Enter(r.Context(), tenant.New())
			require.NoError(t, err)
			release()
		}))

		req := httptest.NewRequest(http.MethodGet, "/records", nil)
		req.Header.Set("Authorization", "Bearer token-acme")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		assert.Zero(t, obs.leakCount())
	})

	t.Run("panics without extractor or resolver", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() { tenant.Middleware(nil, resolver) })
		assert.Panics(t, func() { tenant.Middleware(tenant.BearerExtractor, nil) })
	})
}

func TestRequireTenant(t *testing.T) {
	t.Parallel()

	handler := tenant.RequireTenant(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("rejects without identity", func(t *testing.T) {
		t.Parallel()

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("passes with identity", func(t *testing.T) {
		t.Parallel()

		ctx, release, err := tenant.Enter(context.Background(), tenant.New())
		require.NoError(t, err)
		defer release()

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestCredentialExtractors(t *testing.T) {
	t.Parallel()

	t.Run("bearer", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		got, err := tenant.BearerExtractor(req)
		require.NoError(t, err)
		assert.Empty(t, got)

		req.Header.Set("Authorization", "bearer abc")
		got, err = tenant.BearerExtractor(req)
		require.NoError(t, err)
		assert.Equal(t, "abc", got)

		req.Header.Set("Authorization", "Basic abc")
		_, err = tenant.BearerExtractor(req)
		assert.Error(t, err)
	})

	t.Run("header", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Api-Key", " key ")
		got, err := tenant.HeaderExtractor("")(req)
		require.NoError(t, err)
		assert.Equal(t, "key", got)
	})

	t.Run("cookie", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		got, err := tenant.CookieExtractor("session")(req)
		require.NoError(t, err)
		assert.Empty(t, got)

		req.AddCookie(&http.Cookie{Name: "session", Value: "tok"})
		got, err = tenant.CookieExtractor("session")(req)
		require.NoError(t, err)
		assert.Equal(t, "tok", got)
	})

	t.Run("first of", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Api-Key", "from-header")

		extract := tenant.FirstOf(tenant.BearerExtractor, tenant.HeaderExtractor("X-Api-Key"))
		got, err := extract(req)
		require.NoError(t, err)
		assert.Equal(t, "from-header", got)
	})
}

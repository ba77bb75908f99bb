package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/tenantguard/internal/records"
	"github.com/dmitrymomot/tenantguard/pkg/command"
	"github.com/dmitrymomot/tenantguard/pkg/httpapi"
	"github.com/dmitrymomot/tenantguard/pkg/httpserver"
	"github.com/dmitrymomot/tenantguard/pkg/logger"
	"github.com/dmitrymomot/tenantguard/pkg/ratelimiter"
	"github.com/dmitrymomot/tenantguard/pkg/requestid"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// Routes holds what the HTTP surface needs.
type Routes struct {
	Logger   *slog.Logger
	Resolver tenant.Resolver
	Observer tenant.Observer
	Commands records.Dispatcher
	// Named exposes whitelisted commands at POST /commands/{name}.
	Named            *command.Registry
	Records          records.Reader
	Quota            ratelimiter.Limiter
	Gatherer         prometheus.Gatherer
	MetricsPath      string
	Checks           []httpserver.Check
	ReadinessTimeout time.Duration
}

// NewRouter mounts the probes, the metrics endpoint and the tenant-scoped
// API. Probes and metrics run without identity. Everything under /records
// and /commands requires a resolved tenant and, when Quota is set, spends its quota.
func NewRouter(rt Routes) http.Handler {
	log := rt.Logger
	if log == nil {
		log = logger.Discard()
	}
	onError := httpapi.Error(log)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer, requestid.Middleware)

	r.Get("/livez", httpserver.Liveness())
	r.Get("/readyz", httpserver.Readiness(log, rt.ReadinessTimeout, rt.Checks...))
	if rt.Gatherer != nil {
		path := rt.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.HandlerFor(rt.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(
			tenant.Middleware(tenant.BearerExtractor, rt.Resolver,
				tenant.WithErrorHandler(onError),
				tenant.WithObserver(rt.Observer),
				tenant.WithLogger(log)),
			tenant.RequireTenant(onError),
		)
		if rt.Quota != nil {
			r.Use(ratelimiter.Middleware(rt.Quota, onError, ratelimiter.WithLogger(log)))
		}
		r.Mount("/records", records.Routes(rt.Commands, rt.Records, onError))
		if rt.Named != nil {
			r.Post("/commands/{name}", namedCommand(rt.Named, rt.Commands, onError))
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		onError(w, r, httpapi.ErrNotFound)
	})
	return r
}

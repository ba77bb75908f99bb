// Package app assembles tenantd: configuration, the component graph and the
// processes supervised by the serve command.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/tenantguard/internal/db"
	"github.com/dmitrymomot/tenantguard/internal/records"
	"github.com/dmitrymomot/tenantguard/pkg/command"
	"github.com/dmitrymomot/tenantguard/pkg/dbsession"
	"github.com/dmitrymomot/tenantguard/pkg/event"
	"github.com/dmitrymomot/tenantguard/pkg/httpserver"
	"github.com/dmitrymomot/tenantguard/pkg/identity"
	"github.com/dmitrymomot/tenantguard/pkg/logger"
	"github.com/dmitrymomot/tenantguard/pkg/monitor"
	"github.com/dmitrymomot/tenantguard/pkg/pg"
	"github.com/dmitrymomot/tenantguard/pkg/queue"
	"github.com/dmitrymomot/tenantguard/pkg/ratelimiter"
	"github.com/dmitrymomot/tenantguard/pkg/redis"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// App is the wired process. Build it with New and release it with Close.
type App struct {
	cfg Config
	log *slog.Logger

	pool     *pgxpool.Pool
	system   *pgxpool.Pool
	rdb      *goredis.Client
	memCache *identity.MemoryCache
	memQuota *ratelimiter.MemoryStore
	quota    ratelimiter.Limiter

	monitor  *monitor.Monitor
	registry *prometheus.Registry
	binder   *dbsession.Binder
	history  *event.PostgresStore
	events   *event.Bus
	commands *command.Bus
	named    *command.Registry
	records  *records.Service
	worker   *queue.Worker
	sweeper  *dbsession.Sweeper
	resolver tenant.Resolver
}

// New connects to the configured backends and wires every component.
func New(ctx context.Context, cfg Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = logger.Discard()
	}
	a := &App{cfg: cfg, log: log}

	pool, err := pg.Connect(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	a.pool = pool

	system, err := pg.Connect(ctx, cfg.SystemDBConfig())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.system = system

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	a.monitor = monitor.New(monitor.WithLogger(a.log))
	a.registry = prometheus.NewRegistry()
	if err := a.registry.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	if err := a.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return err
	}
	if err := a.monitor.Register(a.registry); err != nil {
		return err
	}

	src := dbsession.FromPool(a.pool)
	a.binder = dbsession.NewBinder(src,
		dbsession.WithObserver(a.monitor),
		dbsession.WithLogger(a.log),
		dbsession.WithResetTimeout(a.cfg.ResetTimeout))
	a.sweeper = dbsession.NewSweeper(src,
		dbsession.WithSweepInterval(a.cfg.SweepInterval),
		dbsession.WithSweepObserver(a.monitor),
		dbsession.WithSweepLogger(a.log))

	// Tenant traffic may only append tasks; claiming them needs the system role.
	outbox, err := queue.NewPostgresStorage(a.pool, a.cfg.Queue.RetryBackoff)
	if err != nil {
		return err
	}
	enq, err := queue.NewEnqueuer(outbox)
	if err != nil {
		return err
	}
	tasks, err := queue.NewPostgresStorage(a.system, a.cfg.Queue.RetryBackoff)
	if err != nil {
		return err
	}

	a.events = event.NewBus(enq,
		event.WithOutbox(),
		event.WithBusObserver(a.monitor),
		event.WithBusLogger(a.log))
	if err := a.events.Subscribe(records.NewActivityProjector(a.binder, a.log)); err != nil {
		return err
	}

	a.worker, err = queue.NewWorker(tasks, append(a.cfg.Queue.WorkerOptions(),
		queue.WithWorkerLogger(a.log),
		queue.WithWorkerObserver(a.monitor))...)
	if err != nil {
		return err
	}
	if err := a.worker.RegisterHandlers(a.events.QueueHandlers()...); err != nil {
		return err
	}

	a.history = event.NewPostgresStore(a.system)
	emitter, err := event.NewEmitter(event.NewPostgresStore(a.pool), a.events,
		event.WithObserver(a.monitor),
		event.WithLogger(a.log))
	if err != nil {
		return err
	}

	a.commands = command.NewBus(command.WithObserver(a.monitor), command.WithLogger(a.log))
	a.records = records.NewService(a.binder, emitter, records.WithLogger(a.log))
	if err := a.records.Register(a.commands); err != nil {
		return err
	}
	if a.named, err = NewCommandRegistry(); err != nil {
		return err
	}

	if a.cfg.Redis.Enabled() {
		rdb, err := redis.Connect(ctx, a.cfg.Redis)
		if err != nil {
			return err
		}
		a.rdb = rdb
	}
	if err := a.buildQuota(); err != nil {
		return err
	}
	return a.buildResolver()
}

// buildQuota shares buckets through Redis when it is configured.
func (a *App) buildQuota() error {
	if !a.cfg.RateLimit.Enabled() {
		return nil
	}
	var store ratelimiter.Store
	if a.rdb != nil {
		store = ratelimiter.NewRedisStore(a.rdb, ratelimiter.WithRedisLogger(a.log))
	} else {
		a.memQuota = ratelimiter.NewMemoryStore()
		store = a.memQuota
	}
	bucket, err := ratelimiter.NewBucket(store, a.cfg.RateLimit)
	if err != nil {
		return err
	}
	a.quota = bucket
	return nil
}

func (a *App) buildResolver() error {
	var cache identity.Cache
	if a.rdb != nil {
		cache = identity.NewRedisCache(a.rdb, identity.WithRedisLogger(a.log))
	} else {
		a.memCache = identity.NewMemoryCache(a.cfg.CacheSize)
		a.memCache.StartJanitor(a.cfg.CacheTTL)
		cache = a.memCache
	}

	resolver, err := NewResolver(a.cfg, cache, a.log)
	if err != nil {
		return err
	}
	a.resolver = resolver
	return nil
}

// Handler returns the HTTP surface.
func (a *App) Handler() http.Handler {
	checks := []httpserver.Check{pg.Healthcheck(a.pool), pg.Healthcheck(a.system)}
	if a.rdb != nil {
		checks = append(checks, redis.Healthcheck(a.rdb))
	}
	return NewRouter(Routes{
		Logger:           a.log,
		Resolver:         a.resolver,
		Observer:         a.monitor,
		Commands:         a.commands,
		Named:            a.named,
		Records:          a.records,
		Quota:            a.quota,
		Gatherer:         a.registry,
		MetricsPath:      a.cfg.MetricsPath,
		Checks:           checks,
		ReadinessTimeout: a.cfg.ReadinessTimeout,
	})
}

// Run serves HTTP, processes queued deliveries and sweeps stale session
// bindings until ctx is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	srv := httpserver.NewFromConfig(a.cfg.HTTP, httpserver.WithLogger(a.log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx, a.Handler()) })
	g.Go(a.worker.Run(ctx))
	g.Go(a.sweeper.Run(ctx))
	return g.Wait()
}

// Replay re-delivers stored events after the given sequence to their
// subscribers, each under its stamped tenant. Events are read through the
// system pool; subscribers write through the tenant-bound app pool.
func (a *App) Replay(ctx context.Context, after int64) (int64, error) {
	last, err := a.events.Replay(ctx, a.history, after, a.cfg.ReplayBatchSize)
	if err != nil {
		return last, fmt.Errorf("replay stopped after sequence %d: %w", last, err)
	}
	return last, nil
}

// Verify checks that the runtime role is subject to row policies, every
// tenant-scoped table is protected and the queue is out of its reach.
func (a *App) Verify(ctx context.Context) error {
	return db.Verify(ctx, a.pool)
}

// Close releases backend connections.
func (a *App) Close() {
	if a.memCache != nil {
		_ = a.memCache.Close()
	}
	if a.memQuota != nil {
		a.memQuota.Close()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			a.log.Warn("failed to close redis client", logger.Error(err))
		}
	}
	if a.system != nil {
		a.system.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

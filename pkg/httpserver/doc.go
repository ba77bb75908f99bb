// Package httpserver runs the tenantd HTTP API with graceful shutdown.
//
// Run blocks until its context is cancelled, then drains in-flight requests
// within the shutdown timeout. It is meant to be supervised by an errgroup
// next to the queue worker and the pool sweeper:
//
//	srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// Liveness and Readiness provide probe handlers; Readiness takes the same
// func(context.Context) error checks exposed by pg and redis.
package httpserver

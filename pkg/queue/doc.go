// Package queue is a small persistent task queue.
//
// An Enqueuer stores tasks under a handler name; a Worker claims them from a
// WorkerRepository and runs at most WithMaxConcurrentTasks handlers at once.
// Failed tasks are retried with a linear backoff until MaxAttempts and then
// moved to the dead letter table together with tasks nobody handles.
//
// Two repositories are provided. MemoryStorage serves tests and local runs.
// PostgresStorage claims with FOR UPDATE SKIP LOCKED and joins the
// tenant-bound transaction carried by the context when enqueuing, so a task
// created inside a business transaction commits with it.
//
// Handlers never inherit identity: each task runs on a context detached from
// the worker lifecycle, bounded by the lock timeout and carrying an empty
// tenant stack. Anything a handler leaves on that stack is reported to the
// observer as a leak at the "task:<name>" boundary.
//
//	storage, _ := queue.NewPostgresStorage(pool, 30*time.Second)
//	worker, _ := queue.NewWorker(storage, cfg.WorkerOptions()...)
//	_ = worker.RegisterHandlers(bus.QueueHandlers()...)
//	g.Go(worker.Run(ctx))
package queue

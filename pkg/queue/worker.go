package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantguard/pkg/logger"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// WorkerRepository is the storage side of a Worker.
type WorkerRepository interface {
	// ClaimTask locks the next runnable task of queues for workerID. It
	// returns ErrNoTaskToClaim when there is none.
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lock time.Duration) (*Task, error)

	CompleteTask(ctx context.Context, taskID uuid.UUID) error

	// FailTask records errMsg and counts an attempt. The task is rescheduled
	// while attempts remain and marked failed otherwise.
	FailTask(ctx context.Context, taskID uuid.UUID, errMsg string) error

	// MoveToDLQ moves the task to the dead letter table.
	MoveToDLQ(ctx context.Context, taskID uuid.UUID) error

	ExtendLock(ctx context.Context, taskID uuid.UUID, d time.Duration) error
}

// Worker claims tasks and runs them with at most N in flight.
//
// Every task runs on a context that is detached from the worker lifecycle,
// bounded by the lock timeout, and carries a fresh empty tenant stack. Any
// identity still bound when the handler returns is reported as a leak.
type Worker struct {
	repo     WorkerRepository
	id       uuid.UUID
	handlers map[string]Handler
	queues   []string
	sem      chan struct{}

	pollInterval time.Duration
	lockTimeout  time.Duration
	storeTimeout time.Duration
	logger       *slog.Logger
	observer     tenant.Observer

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	base   context.Context
	wg     sync.WaitGroup
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithQueues sets the queues the worker claims from.
func WithQueues(queues ...string) WorkerOption {
	return func(w *Worker) {
		if len(queues) > 0 {
			w.queues = queues
		}
	}
}

// WithPollInterval sets how long an idle worker waits before polling again.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithLockTimeout sets how long a claimed task stays locked. It also bounds
// the handler's context.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.lockTimeout = d
		}
	}
}

// WithMaxConcurrentTasks bounds how many handlers run at once.
func WithMaxConcurrentTasks(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.sem = make(chan struct{}, n)
		}
	}
}

// WithWorkerLogger sets the logger. Nil keeps the default.
func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithWorkerObserver sets the observer leaked task contexts are reported to.
func WithWorkerObserver(o tenant.Observer) WorkerOption {
	return func(w *Worker) {
		w.observer = tenant.ObserverOrNop(o)
	}
}

// NewWorker returns a Worker reading from repo.
func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	w := &Worker{
		repo:         repo,
		id:           uuid.New(),
		handlers:     make(map[string]Handler),
		queues:       []string{DefaultQueueName},
		sem:          make(chan struct{}, 1),
		pollInterval: time.Second,
		lockTimeout:  5 * time.Minute,
		storeTimeout: 10 * time.Second,
		logger:       slog.Default(),
		observer:     tenant.NopObserver{},
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.Component("queue.worker"), slog.String("worker_id", w.id.String()))
	return w, nil
}

// ID returns the identifier the worker locks tasks with.
func (w *Worker) ID() uuid.UUID { return w.id }

// RegisterHandlers registers handlers by name. Names must be unique.
func (w *Worker) RegisterHandlers(handlers ...Handler) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, h := range handlers {
		if h == nil {
			return ErrHandlerNil
		}
		if _, ok := w.handlers[h.Name()]; ok {
			return fmt.Errorf("%w: %s", ErrHandlerExists, h.Name())
		}
		w.handlers[h.Name()] = h
	}
	return nil
}

// Start begins polling in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return ErrWorkerStarted
	}
	if len(w.handlers) == 0 {
		return ErrNoHandlers
	}

	w.base = ctx
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(runCtx, w.done)

	w.logger.InfoContext(ctx, "worker started",
		slog.Any("queues", w.queues),
		slog.Int("max_concurrent", cap(w.sem)))
	return nil
}

// Stop stops claiming new tasks and waits for running ones to finish.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return ErrWorkerStopped
	}
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	cancel()
	<-done
	w.wg.Wait()

	w.logger.Info("worker stopped")
	return nil
}

// Run returns a func for errgroup.Go that runs the worker until ctx is done.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// drain claims tasks until the queue is empty or every slot is busy.
func (w *Worker) drain(ctx context.Context) {
	for ctx.Err() == nil {
		select {
		case w.sem <- struct{}{}:
		default:
			return
		}

		task, err := w.repo.ClaimTask(ctx, w.id, w.queues, w.lockTimeout)
		if err != nil || task == nil {
			<-w.sem
			if err != nil && !errors.Is(err, ErrNoTaskToClaim) && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "failed to claim task", logger.Error(err))
			}
			return
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-w.sem }()
			w.process(task)
		}()
	}
}

func (w *Worker) process(task *Task) {
	start := time.Now()
	err := w.execute(task)
	duration := time.Since(start)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.base), w.storeTimeout)
	defer cancel()

	log := w.logger.With(logger.TaskID(task.ID), logger.Handler(task.Name), logger.Duration(duration))

	if err == nil {
		if err := w.repo.CompleteTask(ctx, task.ID); err != nil {
			log.ErrorContext(ctx, "failed to complete task", logger.Error(err))
			return
		}
		log.DebugContext(ctx, "task completed")
		return
	}

	if ferr := w.repo.FailTask(ctx, task.ID, err.Error()); ferr != nil {
		log.ErrorContext(ctx, "failed to record task failure", logger.Error(ferr))
		return
	}

	exhausted := errors.Is(err, ErrNoHandler) || task.Attempts+1 >= task.MaxAttempts
	if !exhausted {
		log.WarnContext(ctx, "task failed, will retry",
			logger.RetryCount(task.Attempts+1), logger.Error(err))
		return
	}

	if derr := w.repo.MoveToDLQ(ctx, task.ID); derr != nil {
		log.ErrorContext(ctx, "failed to move task to dead letter queue", logger.Error(derr))
		return
	}
	log.ErrorContext(ctx, "task moved to dead letter queue",
		logger.RetryCount(task.Attempts+1), logger.Error(err))
}

// execute runs the handler on an isolated context. Panics become errors.
func (w *Worker) execute(task *Task) (err error) {
	w.mu.Lock()
	h, ok := w.handlers[task.Name]
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, task.Name)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(w.base), w.lockTimeout)
	defer cancel()
	ctx = tenant.Detach(ctx)
	stack, _ := tenant.StackFrom(ctx)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
		if depth := stack.Reset(); depth > 0 {
			w.observer.Leak(ctx, "task:"+task.Name, depth)
		}
	}()

	return h.Handle(ctx, task.Payload)
}

// ExtendLock extends the lock of a long-running task.
func (w *Worker) ExtendLock(ctx context.Context, taskID uuid.UUID, d time.Duration) error {
	return w.repo.ExtendLock(ctx, taskID, d)
}

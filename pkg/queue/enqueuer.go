package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultMaxAttempts = 3

// EnqueuerRepository persists new tasks.
type EnqueuerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
}

// Enqueuer adds tasks to a queue.
type Enqueuer struct {
	repo        EnqueuerRepository
	queue       string
	maxAttempts int
	now         func() time.Time
}

// EnqueuerOption configures an Enqueuer.
type EnqueuerOption func(*Enqueuer)

// WithDefaultQueue sets the queue tasks go to unless WithQueue overrides it.
func WithDefaultQueue(queue string) EnqueuerOption {
	return func(e *Enqueuer) {
		if queue != "" {
			e.queue = queue
		}
	}
}

// WithDefaultMaxAttempts sets the attempt budget of new tasks.
func WithDefaultMaxAttempts(n int) EnqueuerOption {
	return func(e *Enqueuer) {
		if validAttempts(n) {
			e.maxAttempts = n
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) EnqueuerOption {
	return func(e *Enqueuer) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEnqueuer returns an Enqueuer writing to repo.
func NewEnqueuer(repo EnqueuerRepository, opts ...EnqueuerOption) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	e := &Enqueuer{
		repo:        repo,
		queue:       DefaultQueueName,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// EnqueueOption configures a single Enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue       string
	maxAttempts int
	delay       time.Duration
	runAt       time.Time
}

func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

func WithMaxAttempts(n int) EnqueueOption {
	return func(o *enqueueOptions) {
		o.maxAttempts = n
	}
}

func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

func WithRunAt(t time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.runAt = t
	}
}

// Enqueue stores a task for the handler registered under name. payload is
// encoded as JSON; json.RawMessage is stored as is.
func (e *Enqueuer) Enqueue(ctx context.Context, name string, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	if name == "" {
		return uuid.Nil, ErrTaskNameEmpty
	}
	if payload == nil {
		return uuid.Nil, ErrPayloadNil
	}

	o := enqueueOptions{queue: e.queue, maxAttempts: e.maxAttempts}
	for _, opt := range opts {
		opt(&o)
	}
	if !validAttempts(o.maxAttempts) {
		return uuid.Nil, ErrInvalidAttempt
	}

	raw, ok := payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(payload)
		if err != nil {
			return uuid.Nil, fmt.Errorf("queue: encode payload of %T: %w", payload, err)
		}
		raw = b
	}

	now := e.now()
	runAt := o.runAt
	if runAt.IsZero() {
		runAt = now.Add(o.delay)
	}

	task := &Task{
		ID:          uuid.New(),
		Queue:       o.queue,
		Name:        name,
		Payload:     raw,
		Status:      TaskStatusPending,
		MaxAttempts: o.maxAttempts,
		RunAt:       runAt,
		CreatedAt:   now,
	}
	if err := e.repo.CreateTask(ctx, task); err != nil {
		return uuid.Nil, fmt.Errorf("queue: create task %q in queue %q: %w", name, o.queue, err)
	}
	return task.ID, nil
}

func validAttempts(n int) bool {
	return n >= 1 && n <= 25
}

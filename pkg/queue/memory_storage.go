package queue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage is an in-process repository for tests and local runs.
// Expired locks are reclaimed lazily by ClaimTask.
type MemoryStorage struct {
	mu      sync.Mutex
	tasks   map[uuid.UUID]*Task
	dead    []DeadTask
	backoff time.Duration
	now     func() time.Time
}

// MemoryOption configures a MemoryStorage.
type MemoryOption func(*MemoryStorage)

// WithMemoryBackoff sets the linear retry step. Zero retries immediately.
func WithMemoryBackoff(step time.Duration) MemoryOption {
	return func(m *MemoryStorage) {
		if step >= 0 {
			m.backoff = step
		}
	}
}

// WithMemoryClock overrides time.Now.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStorage) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMemoryStorage(opts ...MemoryOption) *MemoryStorage {
	m := &MemoryStorage{
		tasks:   make(map[uuid.UUID]*Task),
		backoff: 30 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return errors.New("queue: task cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[task.ID]; ok {
		return fmt.Errorf("queue: task %s already exists", task.ID)
	}
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

// ClaimTask picks the runnable task with the earliest RunAt, ties broken by
// creation time. Processing tasks whose lock ended before now are runnable again.
func (m *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lock time.Duration) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var best *Task
	for _, t := range m.tasks {
		if !slices.Contains(queues, t.Queue) || t.RunAt.After(now) {
			continue
		}
		switch t.Status {
		case TaskStatusPending:
		case TaskStatusProcessing:
			// Locks are held through locked_until inclusive, as in PostgresStorage.
			if t.LockedUntil == nil || !t.LockedUntil.Before(now) {
				continue
			}
		default:
			continue
		}
		if best == nil || t.RunAt.Before(best.RunAt) ||
			(t.RunAt.Equal(best.RunAt) && t.CreatedAt.Before(best.CreatedAt)) {
			best = t
		}
	}
	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	until := now.Add(lock)
	owner := workerID
	best.Status = TaskStatusProcessing
	best.LockedUntil = &until
	best.LockedBy = &owner

	cp := *best
	return &cp, nil
}

func (m *MemoryStorage) CompleteTask(_ context.Context, taskID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.processing(taskID)
	if err != nil {
		return err
	}
	t.Status = TaskStatusCompleted
	t.LockedUntil, t.LockedBy = nil, nil
	return nil
}

func (m *MemoryStorage) FailTask(_ context.Context, taskID uuid.UUID, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.processing(taskID)
	if err != nil {
		return err
	}
	t.Attempts++
	t.Error = errMsg
	t.LockedUntil, t.LockedBy = nil, nil
	if t.Attempts >= t.MaxAttempts {
		t.Status = TaskStatusFailed
		return nil
	}
	t.Status = TaskStatusPending
	t.RunAt = m.now().Add(linearBackoff(m.backoff, t.Attempts))
	return nil
}

func (m *MemoryStorage) MoveToDLQ(_ context.Context, taskID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	m.dead = append(m.dead, DeadTask{
		ID:       uuid.New(),
		TaskID:   t.ID,
		Queue:    t.Queue,
		Name:     t.Name,
		Payload:  t.Payload,
		Attempts: t.Attempts,
		Error:    t.Error,
		FailedAt: m.now(),
	})
	delete(m.tasks, taskID)
	return nil
}

func (m *MemoryStorage) ExtendLock(_ context.Context, taskID uuid.UUID, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.processing(taskID)
	if err != nil {
		return err
	}
	until := m.now().Add(d)
	t.LockedUntil = &until
	return nil
}

// Task returns a copy of the stored task.
func (m *MemoryStorage) Task(taskID uuid.UUID) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Tasks returns copies of every stored task with the given status.
func (m *MemoryStorage) Tasks(status TaskStatus) []Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Task
	for _, t := range m.tasks {
		if t.Status == status {
			out = append(out, *t)
		}
	}
	return out
}

// DeadTasks returns copies of the dead letter entries.
func (m *MemoryStorage) DeadTasks() []DeadTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.dead)
}

func (m *MemoryStorage) processing(taskID uuid.UUID) (*Task, error) {
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if t.Status != TaskStatusProcessing {
		return nil, fmt.Errorf("queue: task %s is %s, not processing", taskID, t.Status)
	}
	return t, nil
}

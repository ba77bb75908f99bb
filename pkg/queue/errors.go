package queue

import "errors"

var (
	ErrRepositoryNil  = errors.New("queue: repository cannot be nil")
	ErrPayloadNil     = errors.New("queue: payload cannot be nil")
	ErrTaskNameEmpty  = errors.New("queue: task name is required")
	ErrNoTaskToClaim  = errors.New("queue: no task to claim")
	ErrTaskNotFound   = errors.New("queue: task not found")
	ErrHandlerNil     = errors.New("queue: handler cannot be nil")
	ErrHandlerExists  = errors.New("queue: handler already registered")
	ErrNoHandlers     = errors.New("queue: no task handlers registered")
	ErrNoHandler      = errors.New("queue: no handler registered for task")
	ErrWorkerStarted  = errors.New("queue: worker already started")
	ErrWorkerStopped  = errors.New("queue: worker not started")
	ErrHandlerPanic   = errors.New("queue: handler panicked")
	ErrInvalidAttempt = errors.New("queue: max attempts must be between 1 and 25")
)

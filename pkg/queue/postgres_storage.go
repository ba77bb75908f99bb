package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/tenantguard/pkg/dbsession"
)

// DB is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStorage keeps tasks in the queue_tasks and queue_dead_tasks tables.
// Claims use FOR UPDATE SKIP LOCKED so any number of workers can share a queue.
type PostgresStorage struct {
	db      DB
	backoff time.Duration
}

// NewPostgresStorage returns a storage on db with a linear retry step of backoff.
func NewPostgresStorage(db DB, backoff time.Duration) (*PostgresStorage, error) {
	if db == nil {
		return nil, ErrRepositoryNil
	}
	if backoff < 0 {
		backoff = 0
	}
	return &PostgresStorage{db: db, backoff: backoff}, nil
}

// conn joins the tenant-bound transaction in ctx when there is one, so a task
// enqueued inside a business transaction commits or rolls back with it.
func (s *PostgresStorage) conn(ctx context.Context) DB {
	if tx, ok := dbsession.TxFrom(ctx); ok {
		return tx
	}
	return s.db
}

const insertTaskSQL = `INSERT INTO queue_tasks
	(id, queue, name, payload, status, attempts, max_attempts, run_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func (s *PostgresStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return errors.New("queue: task cannot be nil")
	}
	_, err := s.conn(ctx).Exec(ctx, insertTaskSQL,
		task.ID, task.Queue, task.Name, []byte(task.Payload), string(task.Status),
		task.Attempts, task.MaxAttempts, task.RunAt, task.CreatedAt)
	return err
}

const claimTaskSQL = `UPDATE queue_tasks
SET status = 'processing', locked_until = now() + $3::interval, locked_by = $2
WHERE id = (
	SELECT id FROM queue_tasks
	WHERE queue = ANY($1)
		AND run_at <= now()
		AND (status = 'pending' OR (status = 'processing' AND locked_until < now()))
	ORDER BY run_at, created_at
	FOR UPDATE SKIP LOCKED
	LIMIT 1
)
RETURNING id, queue, name, payload, status, attempts, max_attempts, run_at, locked_until, locked_by, error, created_at`

func (s *PostgresStorage) ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lock time.Duration) (*Task, error) {
	var (
		t       Task
		payload []byte
		status  string
	)
	err := s.db.QueryRow(ctx, claimTaskSQL, queues, workerID, lock).Scan(
		&t.ID, &t.Queue, &t.Name, &payload, &status, &t.Attempts, &t.MaxAttempts,
		&t.RunAt, &t.LockedUntil, &t.LockedBy, &t.Error, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoTaskToClaim
	}
	if err != nil {
		return nil, fmt.Errorf("queue: claim task: %w", err)
	}
	t.Payload = payload
	t.Status = TaskStatus(status)
	return &t, nil
}

const completeTaskSQL = `UPDATE queue_tasks
SET status = 'completed', processed_at = now(), locked_until = NULL, locked_by = NULL
WHERE id = $1 AND status = 'processing'`

func (s *PostgresStorage) CompleteTask(ctx context.Context, taskID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, completeTaskSQL, taskID)
	return oneRow(tag, err, taskID)
}

const failTaskSQL = `UPDATE queue_tasks
SET attempts = attempts + 1,
	error = $2,
	locked_until = NULL,
	locked_by = NULL,
	status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
	run_at = CASE WHEN attempts + 1 >= max_attempts THEN run_at
		ELSE now() + $3::interval * (attempts + 1) END
WHERE id = $1 AND status = 'processing'`

func (s *PostgresStorage) FailTask(ctx context.Context, taskID uuid.UUID, errMsg string) error {
	tag, err := s.db.Exec(ctx, failTaskSQL, taskID, errMsg, s.backoff)
	return oneRow(tag, err, taskID)
}

const moveToDLQSQL = `WITH moved AS (
	DELETE FROM queue_tasks WHERE id = $1
	RETURNING id, queue, name, payload, attempts, error
)
INSERT INTO queue_dead_tasks (id, task_id, queue, name, payload, attempts, error, failed_at)
SELECT $2, id, queue, name, payload, attempts, error, now() FROM moved`

func (s *PostgresStorage) MoveToDLQ(ctx context.Context, taskID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, moveToDLQSQL, taskID, uuid.New())
	return oneRow(tag, err, taskID)
}

const extendLockSQL = `UPDATE queue_tasks SET locked_until = now() + $2::interval
WHERE id = $1 AND status = 'processing'`

func (s *PostgresStorage) ExtendLock(ctx context.Context, taskID uuid.UUID, d time.Duration) error {
	tag, err := s.db.Exec(ctx, extendLockSQL, taskID, d)
	return oneRow(tag, err, taskID)
}

func oneRow(tag pgconn.CommandTag, err error, taskID uuid.UUID) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return nil
}

package event

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/tenantguard/pkg/dbsession"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// Store is the durable event log.
type Store interface {
	// Append persists env and sets its Sequence.
	Append(ctx context.Context, env *Envelope) error
	// Load returns up to limit envelopes with Sequence greater than after, in order.
	Load(ctx context.Context, after int64, limit int) ([]Envelope, error)
}

// MemoryStore keeps envelopes in process.
type MemoryStore struct {
	mu        sync.Mutex
	envelopes []Envelope
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append stores a copy of env and numbers it from 1.
func (s *MemoryStore) Append(_ context.Context, env *Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	env.Sequence = int64(len(s.envelopes)) + 1
	cp := *env
	cp.Payload = slices.Clone(env.Payload)
	s.envelopes = append(s.envelopes, cp)
	return nil
}

// Load returns copies, so callers cannot alter the log.
func (s *MemoryStore) Load(_ context.Context, after int64, limit int) ([]Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if after < 0 {
		after = 0
	}
	if after >= int64(len(s.envelopes)) || limit <= 0 {
		return nil, nil
	}
	end := min(int(after)+limit, len(s.envelopes))
	return slices.Clone(s.envelopes[after:end]), nil
}

// DB is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps envelopes in the events table. Appends join the
// tenant-bound transaction carried by ctx, so an event commits or rolls back
// with the change that produced it. The table is under row policies: appends
// need a bound transaction, and Load sees every tenant only through a role
// granted the replay policy.
type PostgresStore struct {
	db DB
}

// NewPostgresStore returns a store over db.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const appendSQL = `INSERT INTO events (id, type, tenant_id, correlation_id, actor, occurred_at, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING sequence`

func (s *PostgresStore) Append(ctx context.Context, env *Envelope) error {
	var q DB = s.db
	if tx, ok := dbsession.TxFrom(ctx); ok {
		q = tx
	}
	m := env.Metadata
	err := q.QueryRow(ctx, appendSQL,
		env.ID, env.Type, m.TenantID.UUID(), m.CorrelationID, m.Actor, m.Timestamp, []byte(env.Payload),
	).Scan(&env.Sequence)
	if err != nil {
		return fmt.Errorf("event: append %s: %w", env.Type, err)
	}
	return nil
}

const loadSQL = `SELECT sequence, id, type, tenant_id, correlation_id, actor, occurred_at, payload
FROM events WHERE sequence > $1 ORDER BY sequence LIMIT $2`

func (s *PostgresStore) Load(ctx context.Context, after int64, limit int) ([]Envelope, error) {
	rows, err := s.db.Query(ctx, loadSQL, after, limit)
	if err != nil {
		return nil, fmt.Errorf("event: load: %w", err)
	}
	return pgx.CollectRows(rows, scanEnvelope)
}

func scanEnvelope(row pgx.CollectableRow) (Envelope, error) {
	var (
		env     Envelope
		payload []byte
		tid     uuid.UUID
	)
	err := row.Scan(&env.Sequence, &env.ID, &env.Type, &tid,
		&env.Metadata.CorrelationID, &env.Metadata.Actor, &env.Metadata.Timestamp, &payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Metadata.TenantID = tenant.FromUUID(tid)
	env.Payload = payload
	return env, nil
}

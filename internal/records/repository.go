package records

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/tenantguard/pkg/dbsession"
	"github.com/dmitrymomot/tenantguard/pkg/pg"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// DBTX is satisfied by pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository runs record queries on a tenant-bound transaction. None of the
// statements mention tenant_id in a predicate or a value list: the row
// policy filters and the column default stamps.
type Repository struct{}

const insertRecordSQL = `INSERT INTO records (id, title, body, created_by, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING tenant_id`

func (Repository) Insert(ctx context.Context, q DBTX, r *Record) error {
	var tid uuid.UUID
	err := q.QueryRow(ctx, insertRecordSQL, r.ID, r.Title, r.Body, r.CreatedBy, r.CreatedAt).Scan(&tid)
	if err != nil {
		return classify(err)
	}
	r.TenantID = tenant.FromUUID(tid)
	return nil
}

const recordColumns = `id, tenant_id, title, body, created_by, created_at`

func (Repository) Get(ctx context.Context, q DBTX, id uuid.UUID) (Record, error) {
	rows, err := q.Query(ctx, `SELECT `+recordColumns+` FROM records WHERE id = $1`, id)
	if err != nil {
		return Record{}, fmt.Errorf("records: get: %w", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if err != nil {
		return Record{}, dbsession.NotFound(err)
	}
	return rec, nil
}

func (Repository) List(ctx context.Context, q DBTX, limit int) ([]Record, error) {
	rows, err := q.Query(ctx,
		`SELECT `+recordColumns+` FROM records ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("records: list: %w", err)
	}
	return pgx.CollectRows(rows, scanRecord)
}

const insertActivitySQL = `INSERT INTO record_activity (record_id, event_id, action, actor, occurred_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (event_id) DO NOTHING`

// InsertActivity stores a at most once per event and reports whether a row
// was written.
func (Repository) InsertActivity(ctx context.Context, q DBTX, a Activity) (bool, error) {
	tag, err := q.Exec(ctx, insertActivitySQL, a.RecordID, a.EventID, a.Action, a.Actor, a.OccurredAt)
	if err != nil {
		return false, classify(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (Repository) ListActivity(ctx context.Context, q DBTX, recordID uuid.UUID) ([]Activity, error) {
	rows, err := q.Query(ctx, `SELECT id, record_id, event_id, action, actor, occurred_at
FROM record_activity WHERE record_id = $1 ORDER BY id`, recordID)
	if err != nil {
		return nil, fmt.Errorf("records: list activity: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Activity, error) {
		var a Activity
		err := row.Scan(&a.ID, &a.RecordID, &a.EventID, &a.Action, &a.Actor, &a.OccurredAt)
		return a, err
	})
}

func scanRecord(row pgx.CollectableRow) (Record, error) {
	var (
		r   Record
		tid uuid.UUID
	)
	if err := row.Scan(&r.ID, &tid, &r.Title, &r.Body, &r.CreatedBy, &r.CreatedAt); err != nil {
		return Record{}, err
	}
	r.TenantID = tenant.FromUUID(tid)
	return r, nil
}

// classify maps constraint and policy failures to domain errors.
func classify(err error) error {
	switch {
	case pg.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	case pg.IsMissingTenant(err):
		return fmt.Errorf("records: %w", tenant.ErrMissingContext)
	case pg.IsPolicyViolation(err):
		return fmt.Errorf("records: %w", tenant.ErrContextMismatch)
	case pg.IsForeignKeyViolationError(err):
		return fmt.Errorf("records: %w", dbsession.ErrNotFound)
	}
	return err
}

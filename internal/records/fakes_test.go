package records_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/tenantguard/pkg/dbsession"
	"github.com/dmitrymomot/tenantguard/pkg/event"
)

// journal records what the fake database saw, in order.
type journal struct {
	mu      sync.Mutex
	entries []string
	args    [][]any
}

func (j *journal) add(entry string, args []any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	j.args = append(j.args, args)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) argsOf(prefix string) []any {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i, e := range j.entries {
		if strings.HasPrefix(e, prefix) {
			return j.args[i]
		}
	}
	return nil
}

// verb names a statement by its first three words.
func verb(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) > 3 {
		fields = fields[:3]
	}
	return strings.Join(fields, " ")
}

type fakeTx struct {
	pgx.Tx
	log       *journal
	bound     string
	insertErr error
	affected  int64
}

func (t *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if strings.Contains(sql, "set_config") {
		t.bound, _ = args[1].(string)
		t.log.add("bind", args)
		return pgconn.NewCommandTag("SELECT 1"), nil
	}
	t.log.add(verb(sql), args)
	if t.insertErr != nil {
		return pgconn.CommandTag{}, t.insertErr
	}
	return pgconn.NewCommandTag(fmt.Sprintf("INSERT 0 %d", t.affected)), nil
}

func (t *fakeTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	t.log.add(verb(sql), args)
	return tenantRow{tx: t}
}

func (t *fakeTx) Commit(context.Context) error {
	t.log.add("commit", nil)
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.log.add("rollback", nil)
	return nil
}

// tenantRow answers INSERT ... RETURNING tenant_id with the bound tenant.
type tenantRow struct{ tx *fakeTx }

func (r tenantRow) Scan(dest ...any) error {
	if r.tx.insertErr != nil {
		return r.tx.insertErr
	}
	u, err := uuid.Parse(r.tx.bound)
	if err != nil {
		return errors.New("no tenant bound")
	}
	*dest[0].(*uuid.UUID) = u
	return nil
}

type fakeConn struct{ tx *fakeTx }

func (c fakeConn) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	c.tx.log.add("reset", args)
	return pgconn.NewCommandTag("SELECT 1"), nil
}
func (c fakeConn) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (c fakeConn) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return c.tx, nil
}
func (c fakeConn) Release()                {}
func (c fakeConn) Discard(context.Context) {}

type fakeSource struct{ tx *fakeTx }

func (s fakeSource) Acquire(context.Context) (dbsession.Conn, error) { return fakeConn(s), nil }

func newBinder(tx *fakeTx) *dbsession.Binder {
	return dbsession.NewBinder(fakeSource{tx: tx})
}

type publisher struct {
	log *journal
}

func (p publisher) Publish(_ context.Context, env event.Envelope) error {
	p.log.add("publish "+env.Type, []any{env})
	return nil
}

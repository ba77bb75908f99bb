package dbsession_test

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/tenantguard/pkg/dbsession"
)

// callLog records statements and lifecycle calls in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, s)
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func describe(prefix, sql string, args []any) string {
	switch {
	case strings.Contains(sql, "set_config($1, $2, true)"):
		return prefix + ":bind:" + args[1].(string)
	case strings.Contains(sql, "set_config($1, '', false)"):
		return prefix + ":reset"
	default:
		return prefix + ":exec"
	}
}

type fakeTx struct {
	pgx.Tx
	log      *callLog
	bindErr  error
	closed   bool
	onCommit func()
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.log.add(describe("tx", sql, args))
	if t.bindErr != nil && strings.Contains(sql, "set_config($1, $2, true)") {
		return pgconn.CommandTag{}, t.bindErr
	}
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.log.add("commit")
	t.closed = true
	if t.onCommit != nil {
		t.onCommit()
	}
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.closed {
		return pgx.ErrTxClosed
	}
	t.log.add("rollback")
	t.closed = true
	return nil
}

type fakeRow struct {
	value string
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.value
	return nil
}

type fakeConn struct {
	log      *callLog
	bindErr  error
	resetErr error
	probe    fakeRow

	resetCtxErr error
	tx          *fakeTx
	onCommit    func()
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	entry := describe("conn", sql, args)
	c.log.add(entry)
	if entry == "conn:reset" {
		c.resetCtxErr = ctx.Err()
		if c.resetErr != nil {
			return pgconn.CommandTag{}, c.resetErr
		}
	}
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (c *fakeConn) QueryRow(context.Context, string, ...any) pgx.Row {
	c.log.add("conn:probe")
	return c.probe
}

func (c *fakeConn) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	c.log.add("begin")
	c.tx = &fakeTx{log: c.log, bindErr: c.bindErr, onCommit: c.onCommit}
	return c.tx, nil
}

func (c *fakeConn) Release() { c.log.add("release") }

func (c *fakeConn) Discard(context.Context) { c.log.add("discard") }

type fakeSource struct {
	mu       sync.Mutex
	conn     *fakeConn
	err      error
	acquired int
	idle     []*fakeConn
}

func (s *fakeSource) Acquire(context.Context) (dbsession.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acquired++
	if s.err != nil {
		return nil, s.err
	}
	return s.conn, nil
}

func (s *fakeSource) AcquireIdle(context.Context) []dbsession.Conn {
	conns := make([]dbsession.Conn, 0, len(s.idle))
	for _, c := range s.idle {
		conns = append(conns, c)
	}
	return conns
}

func newSource() (*fakeSource, *callLog) {
	log := &callLog{}
	return &fakeSource{conn: &fakeConn{log: log}}, log
}

var errBoom = errors.New("boom")

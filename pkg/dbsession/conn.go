package dbsession

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Conn is a pooled connection the binder can run a transaction on.
type Conn interface {
	Execer
	RowQuerier
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	// Release returns the connection to its pool.
	Release()
	// Discard closes the underlying connection so the pool never hands it out again.
	Discard(ctx context.Context)
}

// ConnSource hands out connections.
type ConnSource interface {
	Acquire(ctx context.Context) (Conn, error)
}

// IdleSource hands out every idle connection of a pool.
type IdleSource interface {
	AcquireIdle(ctx context.Context) []Conn
}

// Pool adapts a *pgxpool.Pool to ConnSource and IdleSource.
type Pool struct {
	pool *pgxpool.Pool
}

// FromPool wraps p.
func FromPool(p *pgxpool.Pool) *Pool {
	return &Pool{pool: p}
}

// Acquire implements ConnSource.
func (p *Pool) Acquire(ctx context.Context) (Conn, error) {
	c, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return poolConn{c: c}, nil
}

// AcquireIdle implements IdleSource.
func (p *Pool) AcquireIdle(ctx context.Context) []Conn {
	idle := p.pool.AcquireAllIdle(ctx)
	conns := make([]Conn, 0, len(idle))
	for _, c := range idle {
		conns = append(conns, poolConn{c: c})
	}
	return conns
}

type poolConn struct {
	c *pgxpool.Conn
}

func (p poolConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.c.Exec(ctx, sql, args...)
}

func (p poolConn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.c.QueryRow(ctx, sql, args...)
}

func (p poolConn) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	return p.c.BeginTx(ctx, opts)
}

func (p poolConn) Release() { p.c.Release() }

func (p poolConn) Discard(ctx context.Context) {
	_ = p.c.Conn().Close(ctx)
}

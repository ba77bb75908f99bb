package event_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantguard/pkg/dbsession"
	"github.com/dmitrymomot/tenantguard/pkg/event"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

type recordingObserver struct {
	tenant.NopObserver

	mu         sync.Mutex
	missing    []string
	mismatches []string
	leaks      map[string]int
}

func (o *recordingObserver) MissingContext(_ context.Context, op string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.missing = append(o.missing, op)
}

func (o *recordingObserver) ContextMismatch(_ context.Context, op string, _, _ tenant.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mismatches = append(o.mismatches, op)
}

func (o *recordingObserver) Leak(_ context.Context, boundary string, depth int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.leaks == nil {
		o.leaks = make(map[string]int)
	}
	o.leaks[boundary] += depth
}

func (o *recordingObserver) leakCount(boundary string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.leaks[boundary]
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, env event.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, env.Type)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published...)
}

// cancelCheckingPublisher records whether the publish context was still live.
type cancelCheckingPublisher struct {
	recordingPublisher
	ctxErrs []error
}

func (p *cancelCheckingPublisher) Publish(ctx context.Context, env event.Envelope) error {
	p.mu.Lock()
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	p.mu.Unlock()
	return p.recordingPublisher.Publish(ctx, env)
}

// outboxPublisher publishes inside the caller's transaction.
type outboxPublisher struct {
	recordingPublisher
	inTx []bool
}

func (p *outboxPublisher) JoinsTransaction() bool { return true }

func (p *outboxPublisher) Publish(ctx context.Context, env event.Envelope) error {
	_, ok := dbsession.TxFrom(ctx)
	p.mu.Lock()
	p.inTx = append(p.inTx, ok)
	p.mu.Unlock()
	return p.recordingPublisher.Publish(ctx, env)
}

// nopTx is the smallest transaction the binder can drive.
type nopTx struct{ pgx.Tx }

func (nopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (nopTx) Commit(context.Context) error   { return nil }
func (nopTx) Rollback(context.Context) error { return nil }

type nopConn struct{}

func (nopConn) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (nopConn) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (nopConn) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return nopTx{}, nil
}
func (nopConn) Release()                {}
func (nopConn) Discard(context.Context) {}

type nopSource struct{}

func (nopSource) Acquire(context.Context) (dbsession.Conn, error) { return nopConn{}, nil }

func enter(t *testing.T, ctx context.Context, id tenant.ID) context.Context {
	t.Helper()
	ctx, release, err := tenant.Enter(ctx, id)
	require.NoError(t, err)
	t.Cleanup(release)
	return ctx
}

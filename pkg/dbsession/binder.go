package dbsession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

const opTx = "dbsession:tx"

// TxFunc runs inside a tenant-bound transaction. ctx carries the transaction;
// repositories reach it through TxFrom.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// Binder is the only way business code opens a transaction. Every transaction
// it opens is bound to the active tenant before fn runs, and the connection is
// cleared before it goes back to the pool.
type Binder struct {
	src          ConnSource
	observer     tenant.Observer
	logger       *slog.Logger
	txOptions    pgx.TxOptions
	resetTimeout time.Duration
}

// Option configures a Binder.
type Option func(*Binder)

// WithObserver sets the observer notified of missing context and binding failures.
func WithObserver(o tenant.Observer) Option {
	return func(b *Binder) {
		b.observer = tenant.ObserverOrNop(o)
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Binder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithTxOptions sets the options every transaction is started with.
func WithTxOptions(opts pgx.TxOptions) Option {
	return func(b *Binder) {
		b.txOptions = opts
	}
}

// WithResetTimeout bounds the session reset that runs after every transaction.
func WithResetTimeout(d time.Duration) Option {
	return func(b *Binder) {
		if d > 0 {
			b.resetTimeout = d
		}
	}
}

// NewBinder returns a Binder drawing connections from src.
func NewBinder(src ConnSource, opts ...Option) *Binder {
	b := &Binder{
		src:          src,
		observer:     tenant.NopObserver{},
		logger:       slog.Default(),
		resetTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

type (
	txKey struct{}

	txState struct {
		tx     pgx.Tx
		tenant tenant.ID

		mu    sync.Mutex
		hooks []func(context.Context)
	}
)

// TxFrom returns the bound transaction carried by ctx.
func TxFrom(ctx context.Context) (pgx.Tx, bool) {
	st, ok := stateFrom(ctx)
	if !ok {
		return nil, false
	}
	return st.tx, true
}

// BoundTenant returns the tenant the transaction carried by ctx is bound to.
func BoundTenant(ctx context.Context) (tenant.ID, bool) {
	st, ok := stateFrom(ctx)
	if !ok {
		return tenant.Nil, false
	}
	return st.tenant, true
}

// AfterCommit schedules fn to run once the transaction carried by ctx commits.
// Hooks are dropped on rollback. It reports false when ctx carries no
// transaction; the caller decides whether to run fn immediately.
func AfterCommit(ctx context.Context, fn func(context.Context)) bool {
	st, ok := stateFrom(ctx)
	if !ok || fn == nil {
		return false
	}
	st.mu.Lock()
	st.hooks = append(st.hooks, fn)
	st.mu.Unlock()
	return true
}

func stateFrom(ctx context.Context) (*txState, bool) {
	st, ok := ctx.Value(txKey{}).(*txState)
	return st, ok && st != nil
}

// InTx runs fn in a transaction bound to the active tenant.
//
// No connection is acquired when ctx has no tenant. A nested call joins the
// outer transaction when it belongs to the same tenant and fails with
// tenant.ErrContextMismatch otherwise. After-commit hooks run once the
// connection is back in the pool, on a context that ignores the caller's
// cancellation.
func (b *Binder) InTx(ctx context.Context, fn TxFunc) error {
	id, err := tenant.Current(ctx)
	if err != nil {
		b.observer.MissingContext(ctx, opTx)
		return fmt.Errorf("%s: %w", opTx, err)
	}

	if st, ok := stateFrom(ctx); ok {
		if st.tenant != id {
			b.observer.ContextMismatch(ctx, opTx, id, st.tenant)
			return fmt.Errorf("%s: nested transaction: %w", opTx, tenant.ErrContextMismatch)
		}
		return fn(ctx, st.tx)
	}

	st := &txState{tenant: id}
	if err := b.run(ctx, st, fn); err != nil {
		return err
	}

	// The transaction is durable by now; a caller that goes away must not
	// stop what was promised to run after it.
	hookCtx := context.WithoutCancel(ctx)
	for _, hook := range st.hooks {
		hook(hookCtx)
	}
	return nil
}

func (b *Binder) run(ctx context.Context, st *txState, fn TxFunc) (err error) {
	conn, err := b.src.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%s: acquire connection: %w", opTx, err)
	}
	defer b.release(ctx, conn)

	tx, err := conn.BeginTx(ctx, b.txOptions)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", opTx, err)
	}
	st.tx = tx

	committed := false
	defer func() {
		if committed {
			return
		}
		rbCtx := context.WithoutCancel(ctx)
		if rbErr := tx.Rollback(rbCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			b.logger.WarnContext(ctx, "transaction rollback failed", slog.String("error", rbErr.Error()))
		}
	}()

	if err := Bind(ctx, tx, st.tenant); err != nil {
		b.observer.BindingFailure(ctx, opTx, err)
		return err
	}

	if err := fn(context.WithValue(ctx, txKey{}, st), tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", opTx, err)
	}
	committed = true
	return nil
}

// release clears the session and returns conn to the pool. A connection whose
// reset fails is closed so it can never serve another tenant.
func (b *Binder) release(ctx context.Context, conn Conn) {
	resetCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.resetTimeout)
	defer cancel()

	if err := Reset(resetCtx, conn); err != nil {
		b.logger.WarnContext(ctx, "discarding connection after failed session reset",
			slog.String("error", err.Error()))
		b.observer.BindingFailure(ctx, "dbsession:reset", err)
		conn.Discard(resetCtx)
	}
	conn.Release()
}

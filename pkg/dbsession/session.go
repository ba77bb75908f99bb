package dbsession

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// SettingName is the session variable row policies compare tenant_id against.
const SettingName = "app.tenant_id"

const (
	bindSQL  = "SELECT set_config($1, $2, true)"
	resetSQL = "SELECT set_config($1, '', false)"
	probeSQL = "SELECT coalesce(current_setting($1, true), '')"
)

// Execer is satisfied by pgx.Tx, *pgx.Conn and *pgxpool.Conn.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// RowQuerier is satisfied by pgx.Tx, *pgx.Conn and *pgxpool.Conn.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Bind sets the tenant for the current transaction on q. It must run on the
// very transaction that executes the following queries; binding on another
// pooled connection is invisible to row policies. The value is transaction
// local and disappears on commit or rollback.
func Bind(ctx context.Context, q Execer, id tenant.ID) error {
	if id.IsZero() {
		return errors.Join(ErrSessionBinding, tenant.ErrInvalidID)
	}
	if _, err := q.Exec(ctx, bindSQL, SettingName, id.String()); err != nil {
		return errors.Join(ErrSessionBinding, err)
	}
	return nil
}

// Reset clears the tenant setting at session level on q.
func Reset(ctx context.Context, q Execer) error {
	_, err := q.Exec(ctx, resetSQL, SettingName)
	return err
}

// Probe returns the tenant currently bound on q, or "" when none is.
func Probe(ctx context.Context, q RowQuerier) (string, error) {
	var value string
	if err := q.QueryRow(ctx, probeSQL, SettingName).Scan(&value); err != nil {
		return "", err
	}
	return value, nil
}

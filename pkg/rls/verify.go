package rls

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const (
	tableStateSQL = `SELECT c.relrowsecurity, c.relforcerowsecurity,
	(SELECT count(*) FROM pg_policies p WHERE p.schemaname = n.nspname AND p.tablename = c.relname)
FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relname = $2`

	roleStateSQL = `SELECT rolname, rolsuper, rolbypassrls FROM pg_roles WHERE rolname = current_user`

	canReadSQL = `SELECT has_table_privilege(current_user, $1, 'SELECT')`
)

// RowQuerier is satisfied by pgx.Tx, *pgx.Conn, *pgxpool.Conn and *pgxpool.Pool.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Verify checks that each table enables and forces row level security and has
// at least one policy, and that the connected role cannot bypass policies.
// All problems are reported together.
func Verify(ctx context.Context, q RowQuerier, policies ...Policy) error {
	var errs []error

	var (
		role             string
		super, bypassRLS bool
	)
	if err := q.QueryRow(ctx, roleStateSQL).Scan(&role, &super, &bypassRLS); err != nil {
		return fmt.Errorf("rls: read current role: %w", err)
	}
	if super || bypassRLS {
		errs = append(errs, fmt.Errorf("%w: %s", ErrPrivilegedRole, role))
	}

	for _, p := range policies {
		p, err := p.normalized()
		if err != nil {
			return err
		}

		var (
			enabled, forced bool
			count           int64
		)
		err = q.QueryRow(ctx, tableStateSQL, p.Schema, p.Table).Scan(&enabled, &forced, &count)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			errs = append(errs, fmt.Errorf("%w: table %s.%s does not exist", ErrPolicyMissing, p.Schema, p.Table))
		case err != nil:
			return fmt.Errorf("rls: read table state of %s.%s: %w", p.Schema, p.Table, err)
		case !enabled:
			errs = append(errs, fmt.Errorf("%w: %s.%s: not enabled", ErrPolicyMissing, p.Schema, p.Table))
		case !forced:
			errs = append(errs, fmt.Errorf("%w: %s.%s: not forced for the owner", ErrPolicyMissing, p.Schema, p.Table))
		case count == 0:
			errs = append(errs, fmt.Errorf("%w: %s.%s: no policy", ErrPolicyMissing, p.Schema, p.Table))
		}
	}

	return errors.Join(errs...)
}

// VerifyUnreadable checks that the connected role holds no SELECT privilege
// on tables that keep rows of every tenant without a row policy, such as a
// task queue. Names are schema qualified or resolved through search_path.
func VerifyUnreadable(ctx context.Context, q RowQuerier, tables ...string) error {
	var errs []error
	for _, table := range tables {
		var readable bool
		if err := q.QueryRow(ctx, canReadSQL, table).Scan(&readable); err != nil {
			return fmt.Errorf("rls: read privileges on %s: %w", table, err)
		}
		if readable {
			errs = append(errs, fmt.Errorf("%w: %s", ErrReadable, table))
		}
	}
	return errors.Join(errs...)
}

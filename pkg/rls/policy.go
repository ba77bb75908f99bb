package rls

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/tenantguard/pkg/dbsession"
)

const (
	DefaultSchema = "public"
	DefaultColumn = "tenant_id"
	PolicyName    = "tenant_isolation"
)

// Policy describes a tenant-scoped table. Zero fields fall back to
// DefaultSchema, DefaultColumn and dbsession.SettingName.
type Policy struct {
	Schema  string
	Table   string
	Column  string
	Setting string
}

// For returns the default policy for table.
func For(table string) Policy {
	return Policy{Table: table}
}

func (p Policy) normalized() (Policy, error) {
	if strings.TrimSpace(p.Table) == "" {
		return p, fmt.Errorf("%w: table name is required", ErrInvalidPolicy)
	}
	if p.Schema == "" {
		p.Schema = DefaultSchema
	}
	if p.Column == "" {
		p.Column = DefaultColumn
	}
	if p.Setting == "" {
		p.Setting = dbsession.SettingName
	}
	if strings.ContainsAny(p.Setting, "'\\") || !strings.Contains(p.Setting, ".") {
		return p, fmt.Errorf("%w: setting %q must be a dotted custom parameter name", ErrInvalidPolicy, p.Setting)
	}
	return p, nil
}

// Statements renders the DDL that makes the table tenant isolated:
// row level security enabled and forced on the owner, one policy filtering
// reads and checking writes against the bound tenant, a column default taken
// from the binding, and a trigger keeping the column immutable.
//
// The expression compares against NULL when nothing is bound, so unbound
// sessions see no rows and cannot write any.
func (p Policy) Statements() ([]string, error) {
	p, err := p.normalized()
	if err != nil {
		return nil, err
	}

	table := pgx.Identifier{p.Schema, p.Table}.Sanitize()
	column := pgx.Identifier{p.Column}.Sanitize()
	policy := pgx.Identifier{PolicyName}.Sanitize()
	bound := fmt.Sprintf("NULLIF(current_setting('%s', true), '')::uuid", p.Setting)
	fnName := p.Table + "_" + p.Column + "_immutable"
	fn := pgx.Identifier{p.Schema, fnName}.Sanitize()
	trigger := pgx.Identifier{fnName}.Sanitize()

	return []string{
		fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", table, column),
		fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", table, column, bound),
		fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY", table),
		fmt.Sprintf("ALTER TABLE %s FORCE ROW LEVEL SECURITY", table),
		fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s", policy, table),
		fmt.Sprintf("CREATE POLICY %s ON %s USING (%s = %s) WITH CHECK (%s = %s)",
			policy, table, column, bound, column, bound),
		fmt.Sprintf(`CREATE OR REPLACE FUNCTION %s() RETURNS trigger LANGUAGE plpgsql AS $fn$
BEGIN
	IF NEW.%s IS DISTINCT FROM OLD.%s THEN
		RAISE EXCEPTION '%s.%s is immutable' USING ERRCODE = 'check_violation';
	END IF;
	RETURN NEW;
END
$fn$`, fn, column, column, p.Table, p.Column),
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s", trigger, table),
		fmt.Sprintf("CREATE TRIGGER %s BEFORE UPDATE OF %s ON %s FOR EACH ROW EXECUTE FUNCTION %s()",
			trigger, column, table, fn),
	}, nil
}

// Execer is satisfied by pgx.Tx, *pgx.Conn, *pgxpool.Conn and *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Apply executes the statements of every policy in order. Statements are
// idempotent so Apply can run on every deploy.
func Apply(ctx context.Context, q Execer, policies ...Policy) error {
	for _, p := range policies {
		stmts, err := p.Statements()
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			if _, err := q.Exec(ctx, stmt); err != nil {
				return errors.Join(fmt.Errorf("rls: apply policy on %s", p.Table), err)
			}
		}
	}
	return nil
}

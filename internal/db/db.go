// Package db owns the tenantd schema: embedded migrations, the row policies
// of tenant-scoped tables and the grants of the runtime role.
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/tenantguard/internal/db/migrations"
	"github.com/dmitrymomot/tenantguard/pkg/logger"
	"github.com/dmitrymomot/tenantguard/pkg/pg"
	"github.com/dmitrymomot/tenantguard/pkg/rls"
)

// Tenant-scoped tables.
const (
	TableEvents         = "events"
	TableRecords        = "records"
	TableRecordActivity = "record_activity"
)

// System tables hold rows of every tenant and carry no row policy.
const (
	TableQueueTasks     = "queue_tasks"
	TableQueueDeadTasks = "queue_dead_tasks"
)

// ReplayPolicy is the events policy that lets the system role read every
// tenant's events.
const ReplayPolicy = "system_replay"

// Roles names the database roles migrate grants access to. Empty names are
// skipped.
type Roles struct {
	// App serves tenant traffic. It reaches tenant rows through row policies
	// only and may append to the task queue, never read it.
	App string
	// System runs the task worker and replay. It reads every tenant's events
	// and owns the queue rows, but has no access to tenant tables.
	System string
}

// Policies lists the row policies every tenant-scoped table carries.
func Policies() []rls.Policy {
	return []rls.Policy{
		rls.For(TableEvents),
		rls.For(TableRecords),
		rls.For(TableRecordActivity),
	}
}

// SystemTables lists the tables the app role must not be able to read.
func SystemTables() []string {
	return []string{TableQueueTasks, TableQueueDeadTasks}
}

// Migrate brings the schema up to date, then applies row policies and grants
// the runtime roles access in one transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, roles Roles, log *slog.Logger) error {
	if log == nil {
		log = logger.Discard()
	}
	if err := pg.Migrate(ctx, pool, migrations.FS, cfg, log); err != nil {
		return err
	}

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := rls.Apply(ctx, tx, Policies()...); err != nil {
			return err
		}
		if roles.App != "" {
			if err := GrantApp(ctx, tx, roles.App); err != nil {
				return err
			}
		}
		if roles.System != "" {
			if err := GrantSystem(ctx, tx, roles.System); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.Join(pg.ErrFailedToApplyMigrations, err)
	}

	log.InfoContext(ctx, "schema is up to date",
		logger.Component("migrations"),
		slog.Int("policies", len(Policies())))
	return nil
}

// GrantApp gives role the DML privileges tenant traffic needs. Ownership
// stays with the migrating role so that FORCE ROW LEVEL SECURITY applies.
func GrantApp(ctx context.Context, q rls.Execer, role string) error {
	ident := pgx.Identifier{role}.Sanitize()
	return execAll(ctx, q, role,
		fmt.Sprintf("GRANT USAGE ON SCHEMA public TO %s", ident),
		fmt.Sprintf("GRANT SELECT, INSERT ON %s TO %s", table(TableEvents), ident),
		fmt.Sprintf("GRANT INSERT ON %s TO %s", table(TableQueueTasks), ident),
		fmt.Sprintf("GRANT SELECT, INSERT, UPDATE, DELETE ON %s, %s TO %s",
			table(TableRecords), table(TableRecordActivity), ident),
		fmt.Sprintf("GRANT USAGE, SELECT ON ALL SEQUENCES IN SCHEMA public TO %s", ident),
	)
}

// GrantSystem gives role the queue and read access to every event.
func GrantSystem(ctx context.Context, q rls.Execer, role string) error {
	ident := pgx.Identifier{role}.Sanitize()
	policy := pgx.Identifier{ReplayPolicy}.Sanitize()
	return execAll(ctx, q, role,
		fmt.Sprintf("GRANT USAGE ON SCHEMA public TO %s", ident),
		fmt.Sprintf("GRANT SELECT ON %s TO %s", table(TableEvents), ident),
		fmt.Sprintf("GRANT SELECT, INSERT, UPDATE, DELETE ON %s, %s TO %s",
			table(TableQueueTasks), table(TableQueueDeadTasks), ident),
		fmt.Sprintf("DROP POLICY IF EXISTS %s ON %s", policy, table(TableEvents)),
		fmt.Sprintf("CREATE POLICY %s ON %s FOR SELECT TO %s USING (true)", policy, table(TableEvents), ident),
	)
}

func execAll(ctx context.Context, q rls.Execer, role string, stmts ...string) error {
	for _, stmt := range stmts {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("db: grant %s: %w", role, err)
		}
	}
	return nil
}

func table(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// Verify checks the runtime role against every tenant-scoped table and makes
// sure it cannot read the system tables.
func Verify(ctx context.Context, q rls.RowQuerier) error {
	return errors.Join(
		rls.Verify(ctx, q, Policies()...),
		rls.VerifyUnreadable(ctx, q, SystemTables()...),
	)
}

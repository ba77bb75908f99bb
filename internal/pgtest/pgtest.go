//go:build integration

// Package pgtest starts a disposable Postgres with the tenantd schema for
// integration tests. The schema is owned by the container superuser and the
// runtime roles are ordinary login roles, so row policies apply to them.
package pgtest

import (
	"context"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/dmitrymomot/tenantguard/internal/db"
	"github.com/dmitrymomot/tenantguard/pkg/pg"
)

const (
	Image          = "postgres:16-alpine"
	AppRole        = "tenantd_app"
	appPassword    = "tenantd_app"
	SystemRole     = "tenantd_system"
	systemPassword = "tenantd_system"
)

// DB describes a migrated database.
type DB struct {
	Config pg.Config
	// Owner is a pool of the superuser that owns the schema.
	Owner *pgxpool.Pool
	// App is a pool of the runtime role.
	App *pgxpool.Pool
	// System is a pool of the worker and replay role.
	System *pgxpool.Pool
	// SystemDSN connects as the system role.
	SystemDSN string
}

// Start runs a container, migrates it and returns pools for both roles.
// Everything is torn down with t.Cleanup.
func Start(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := postgres.Run(ctx, Image,
		postgres.WithDatabase("tenantd"),
		postgres.WithUsername("owner"),
		postgres.WithPassword("owner"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	ownerDSN, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	appDSN, err := withUser(ownerDSN, AppRole, appPassword)
	require.NoError(t, err)
	systemDSN, err := withUser(ownerDSN, SystemRole, systemPassword)
	require.NoError(t, err)

	cfg := pg.Config{
		ConnectionString:          appDSN,
		MigrationConnectionString: ownerDSN,
		MigrationsTable:           "schema_migrations",
		MaxConns:                  4,
		RetryAttempts:             3,
		RetryInterval:             500 * time.Millisecond,
	}

	owner, err := pg.ConnectForMigrations(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(owner.Close)

	for role, password := range map[string]string{AppRole: appPassword, SystemRole: systemPassword} {
		_, err = owner.Exec(ctx, fmt.Sprintf("CREATE ROLE %s LOGIN PASSWORD '%s' NOSUPERUSER NOBYPASSRLS",
			pgx.Identifier{role}.Sanitize(), password))
		require.NoError(t, err)
	}
	require.NoError(t, db.Migrate(ctx, owner, cfg, db.Roles{App: AppRole, System: SystemRole}, nil))

	app, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	sysCfg := cfg
	sysCfg.ConnectionString = systemDSN
	system, err := pg.Connect(ctx, sysCfg)
	require.NoError(t, err)
	t.Cleanup(system.Close)

	return &DB{Config: cfg, Owner: owner, App: app, System: system, SystemDSN: systemDSN}
}

func withUser(dsn, user, password string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	u.User = url.UserPassword(user, password)
	return u.String(), nil
}

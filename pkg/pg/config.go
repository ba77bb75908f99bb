package pg

import "time"

// Config describes the application pool. ConnectionString must name a role
// that is neither superuser nor BYPASSRLS, or row policies are skipped.
type Config struct {
	ConnectionString  string        `env:"PG_CONN_URL,required"`
	MaxConns          int32         `env:"PG_MAX_CONNS" envDefault:"10"`
	MinConns          int32         `env:"PG_MIN_CONNS" envDefault:"2"`
	HealthCheckPeriod time.Duration `env:"PG_HEALTHCHECK_PERIOD" envDefault:"1m"`
	MaxConnIdleTime   time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m"`
	MaxConnLifetime   time.Duration `env:"PG_MAX_CONN_LIFETIME" envDefault:"30m"`

	RetryAttempts int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"2s"`

	// MigrationConnectionString is used by the migrate command only. It
	// falls back to ConnectionString when empty.
	MigrationConnectionString string `env:"PG_MIGRATION_CONN_URL"`
	MigrationsTable           string `env:"PG_MIGRATIONS_TABLE" envDefault:"schema_migrations"`
}

// MigrationDSN returns the connection string for schema changes.
func (c Config) MigrationDSN() string {
	if c.MigrationConnectionString != "" {
		return c.MigrationConnectionString
	}
	return c.ConnectionString
}

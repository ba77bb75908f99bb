package pg

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrFailedToOpenDBConnection = errors.New("pg: failed to open connection pool")
	ErrEmptyConnectionString    = errors.New("pg: empty connection string, set PG_CONN_URL")
	ErrHealthcheckFailed        = errors.New("pg: healthcheck failed")
	ErrFailedToParseDBConfig    = errors.New("pg: failed to parse pool config")
	ErrFailedToApplyMigrations  = errors.New("pg: failed to apply migrations")
	ErrNoMigrations             = errors.New("pg: no migrations provided")
)

// SQLSTATE codes the application classifies.
const (
	CodeUniqueViolation       = "23505"
	CodeForeignKeyViolation   = "23503"
	CodeNotNullViolation      = "23502"
	CodeInsufficientPrivilege = "42501"
	CodeRaiseException        = "P0001"
)

// HasCode reports whether err carries a Postgres error with the given SQLSTATE.
func HasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

func IsDuplicateKeyError(err error) bool { return HasCode(err, CodeUniqueViolation) }

func IsForeignKeyViolationError(err error) bool { return HasCode(err, CodeForeignKeyViolation) }

// IsPolicyViolation reports a row rejected by a row security WITH CHECK
// clause or a privilege check.
func IsPolicyViolation(err error) bool { return HasCode(err, CodeInsufficientPrivilege) }

// IsMissingTenant reports an insert that reached a tenant_id NOT NULL
// constraint because no tenant was bound to the session.
func IsMissingTenant(err error) bool { return HasCode(err, CodeNotNullViolation) }

// Package pg bootstraps the Postgres pool the session binder runs on.
//
// Connect opens a pgxpool with bounded retries, Migrate applies embedded goose
// migrations and Healthcheck wraps Ping for readiness probes. The runtime pool
// must connect as a role subject to row security; migrations may use a
// separate owner role through PG_MIGRATION_CONN_URL.
//
// Error helpers classify SQLSTATE codes the tenant layer cares about:
// IsPolicyViolation for rows rejected by a policy and IsMissingTenant for
// inserts attempted without a bound tenant.
package pg

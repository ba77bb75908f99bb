package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dmitrymomot/tenantguard/pkg/httpserver"
	"github.com/dmitrymomot/tenantguard/pkg/identity"
	"github.com/dmitrymomot/tenantguard/pkg/logger"
	"github.com/dmitrymomot/tenantguard/pkg/pg"
	"github.com/dmitrymomot/tenantguard/pkg/queue"
	"github.com/dmitrymomot/tenantguard/pkg/ratelimiter"
	"github.com/dmitrymomot/tenantguard/pkg/redis"
	"github.com/dmitrymomot/tenantguard/pkg/requestid"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// DefaultServiceName names the service in logs when APP_NAME is unset.
const DefaultServiceName = "tenantd"

// Config is the environment of tenantd.
type Config struct {
	Environment string `env:"APP_ENV" envDefault:"development"`
	ServiceName string `env:"APP_NAME" envDefault:"tenantd"`
	LogLevel    string `env:"LOG_LEVEL"`
	LogFormat   string `env:"LOG_FORMAT"`

	DB    pg.Config
	Redis redis.Config
	HTTP  httpserver.Config
	Queue queue.Config

	// RateLimit is the per-tenant request quota. Zero capacity disables it.
	RateLimit ratelimiter.Config

	// SystemDB connects as the role that runs the task worker and replay.
	// It reads every tenant's events, so tenant traffic never uses it.
	SystemDB      string        `env:"PG_SYSTEM_CONN_URL"`
	ResetTimeout  time.Duration `env:"DB_RESET_TIMEOUT" envDefault:"2s"`
	SweepInterval time.Duration `env:"DB_SWEEP_INTERVAL" envDefault:"30s"`

	JWTSecret         string        `env:"AUTH_JWT_SECRET"`
	JWTIssuer         string        `env:"AUTH_JWT_ISSUER"`
	JWTAudience       string        `env:"AUTH_JWT_AUDIENCE"`
	StaticCredentials string        `env:"AUTH_STATIC_CREDENTIALS"`
	CacheTTL          time.Duration `env:"AUTH_CACHE_TTL" envDefault:"1m"`
	CacheSize         int           `env:"AUTH_CACHE_SIZE" envDefault:"1000"`

	MetricsPath      string        `env:"METRICS_PATH" envDefault:"/metrics"`
	ReadinessTimeout time.Duration `env:"HTTP_READINESS_TIMEOUT" envDefault:"2s"`
	ReplayBatchSize  int           `env:"EVENT_REPLAY_BATCH" envDefault:"500"`
}

// Validate rejects configurations the process cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.SystemDB == "" {
		errs = append(errs, errors.New("PG_SYSTEM_CONN_URL is required"))
	} else if c.SystemDB == c.DB.ConnectionString {
		errs = append(errs, errors.New("PG_SYSTEM_CONN_URL must connect as a different role than PG_CONN_URL"))
	}
	switch {
	case c.JWTSecret == "" && c.StaticCredentials == "":
		errs = append(errs, errors.New("one of AUTH_JWT_SECRET or AUTH_STATIC_CREDENTIALS is required"))
	case c.JWTSecret != "" && c.StaticCredentials != "":
		errs = append(errs, errors.New("AUTH_JWT_SECRET and AUTH_STATIC_CREDENTIALS are mutually exclusive"))
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < identity.MinSecretLength {
		errs = append(errs, fmt.Errorf("AUTH_JWT_SECRET must be at least %d bytes", identity.MinSecretLength))
	}
	if c.CacheTTL < 0 {
		errs = append(errs, errors.New("AUTH_CACHE_TTL must not be negative"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("DB_SWEEP_INTERVAL must be positive"))
	}
	if c.Queue.MaxConcurrentTasks < 1 {
		errs = append(errs, errors.New("QUEUE_MAX_CONCURRENT_TASKS must be at least 1"))
	}
	if c.RateLimit.Enabled() && (c.RateLimit.RefillRate < 1 || c.RateLimit.RefillInterval < time.Millisecond) {
		errs = append(errs, errors.New("TENANT_RATE_REFILL must be positive and TENANT_RATE_INTERVAL at least 1ms"))
	}
	if c.ReplayBatchSize < 1 {
		errs = append(errs, errors.New("EVENT_REPLAY_BATCH must be at least 1"))
	}
	if c.MetricsPath == "" || c.MetricsPath[0] != '/' {
		errs = append(errs, errors.New("METRICS_PATH must start with /"))
	}
	if c.LogLevel != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
			errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
		}
	}
	switch logger.Format(c.LogFormat) {
	case "", logger.FormatJSON, logger.FormatText:
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be %q or %q", logger.FormatJSON, logger.FormatText))
	}
	return errors.Join(errs...)
}

// SystemDBConfig is the pool configuration of the system role. Pool sizing and
// retries follow the app pool.
func (c Config) SystemDBConfig() pg.Config {
	sys := c.DB
	sys.ConnectionString = c.SystemDB
	return sys
}

// NewLogger builds the process logger. Every record carries the request id,
// tenant and actor found on its context.
func NewLogger(cfg Config, w io.Writer) *slog.Logger {
	service := cfg.ServiceName
	if service == "" {
		service = DefaultServiceName
	}
	opts := []logger.Option{
		logger.WithEnvironment(cfg.Environment, service),
		logger.WithOutput(w),
		logger.WithContextExtractors(
			requestid.LoggerExtractor(),
			tenant.LoggerExtractor(),
			tenant.ActorLoggerExtractor(),
		),
	}
	if cfg.LogLevel != "" {
		opts = append(opts, logger.WithLevelName(cfg.LogLevel))
	}
	if cfg.LogFormat != "" {
		opts = append(opts, logger.WithFormat(logger.Format(cfg.LogFormat)))
	}
	return logger.New(opts...)
}

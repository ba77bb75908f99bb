// Package monitor turns tenant isolation signals into Prometheus counters and
// structured warnings.
package monitor

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/tenantguard/pkg/logger"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// Violation kinds used as the "kind" label.
const (
	KindMissingContext  = "missing_context"
	KindContextMismatch = "context_mismatch"
)

const namespace = "tenantguard"

// Monitor implements tenant.Observer.
type Monitor struct {
	violations      *prometheus.CounterVec
	leaks           *prometheus.CounterVec
	bindingFailures *prometheus.CounterVec
	logger          *slog.Logger
}

var _ tenant.Observer = (*Monitor)(nil)

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger warnings are written to.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// New returns a Monitor with unregistered collectors; pass them to a
// registry with Collectors or use Register.
func New(opts ...Option) *Monitor {
	m := &Monitor{
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Operations rejected because the tenant context was missing or did not match.",
		}, []string{"kind", "operation"}),
		leaks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_leaks_total",
			Help:      "Units of work that ended with identity still bound.",
		}, []string{"boundary"}),
		bindingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_binding_failures_total",
			Help:      "Database sessions that could not be bound or reset.",
		}, []string{"operation"}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logger.Component("monitor"))
	return m
}

// Collectors returns the Prometheus collectors owned by m.
func (m *Monitor) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.violations, m.leaks, m.bindingFailures}
}

// Register registers every collector with r.
func (m *Monitor) Register(r prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Monitor) MissingContext(ctx context.Context, op string) {
	m.violations.WithLabelValues(KindMissingContext, op).Inc()
	m.logger.WarnContext(ctx, "operation rejected: no tenant context",
		logger.Operation(op),
	)
}

func (m *Monitor) ContextMismatch(ctx context.Context, op string, active, declared tenant.ID) {
	m.violations.WithLabelValues(KindContextMismatch, op).Inc()
	m.logger.WarnContext(ctx, "operation rejected: tenant mismatch",
		logger.Operation(op),
		slog.String("active_tenant_id", active.String()),
		logger.DeclaredTenantID(declared),
	)
}

func (m *Monitor) Leak(ctx context.Context, boundary string, depth int) {
	m.leaks.WithLabelValues(boundary).Inc()
	m.logger.WarnContext(ctx, "tenant context leaked past unit of work",
		logger.Boundary(boundary),
		logger.Depth(depth),
	)
}

func (m *Monitor) BindingFailure(ctx context.Context, op string, err error) {
	m.bindingFailures.WithLabelValues(op).Inc()
	m.logger.ErrorContext(ctx, "tenant session binding failed",
		logger.Operation(op),
		logger.Error(err),
	)
}

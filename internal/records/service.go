package records

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/tenantguard/pkg/command"
	"github.com/dmitrymomot/tenantguard/pkg/dbsession"
	"github.com/dmitrymomot/tenantguard/pkg/event"
	"github.com/dmitrymomot/tenantguard/pkg/logger"
	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// List limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Emitter is satisfied by *event.Emitter.
type Emitter interface {
	Emit(ctx context.Context, eventType string, payload any) (event.Envelope, error)
}

// Service writes records through the command bus and reads them under the
// caller's tenant.
type Service struct {
	binder  *dbsession.Binder
	emitter Emitter
	repo    Repository
	now     func() time.Time
	logger  *slog.Logger
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(binder *dbsession.Binder, em Emitter, opts ...ServiceOption) *Service {
	s := &Service{
		binder:  binder,
		emitter: em,
		now:     time.Now,
		logger:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("records"))
	return s
}

// Register installs the command handlers on bus.
func (s *Service) Register(bus *command.Bus) error {
	return command.Handle(bus, s.create)
}

// create stores the record and its RecordCreated event in one transaction.
func (s *Service) create(ctx context.Context, cmd CreateRecord) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	actor, _ := tenant.ActorFromContext(ctx)

	return s.binder.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rec := Record{
			ID:        cmd.RecordID,
			Title:     cmd.Title,
			Body:      cmd.Body,
			CreatedBy: actor,
			CreatedAt: s.now().UTC(),
		}
		if err := s.repo.Insert(ctx, tx, &rec); err != nil {
			return err
		}
		if _, err := s.emitter.Emit(ctx, EventRecordCreated, RecordCreated{RecordID: rec.ID, Title: rec.Title}); err != nil {
			return err
		}
		s.logger.DebugContext(ctx, "record created", slog.String("record_id", rec.ID.String()))
		return nil
	})
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	var rec Record
	err := s.binder.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		rec, err = s.repo.Get(ctx, tx, id)
		return err
	})
	return rec, err
}

func (s *Service) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	var out []Record
	err := s.binder.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		out, err = s.repo.List(ctx, tx, limit)
		return err
	})
	return out, err
}

// Activity returns the history of a record visible to the caller.
func (s *Service) Activity(ctx context.Context, recordID uuid.UUID) ([]Activity, error) {
	var out []Activity
	err := s.binder.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := s.repo.Get(ctx, tx, recordID); err != nil {
			return err
		}
		var err error
		out, err = s.repo.ListActivity(ctx, tx, recordID)
		return err
	})
	return out, err
}

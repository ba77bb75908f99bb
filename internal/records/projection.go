package records

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/tenantguard/pkg/dbsession"
	"github.com/dmitrymomot/tenantguard/pkg/event"
	"github.com/dmitrymomot/tenantguard/pkg/logger"
)

// ActivityHandlerName is the queue task name of the activity projection.
const ActivityHandlerName = "records.activity"

// ActivityProjector writes a record_activity row for every RecordCreated
// event. It runs asynchronously under the tenant stamped on the envelope and
// is idempotent per event id, so redelivery and replay are safe.
type ActivityProjector struct {
	binder *dbsession.Binder
	repo   Repository
	logger *slog.Logger
}

func NewActivityProjector(binder *dbsession.Binder, log *slog.Logger) *ActivityProjector {
	if log == nil {
		log = logger.Discard()
	}
	return &ActivityProjector{binder: binder, logger: log.With(logger.Handler(ActivityHandlerName))}
}

func (p *ActivityProjector) Name() string      { return ActivityHandlerName }
func (p *ActivityProjector) EventType() string { return EventRecordCreated }

func (p *ActivityProjector) Handle(ctx context.Context, env event.Envelope) error {
	if env.Type != EventRecordCreated {
		return fmt.Errorf("%w: %s got %s", event.ErrUnexpectedType, ActivityHandlerName, env.Type)
	}
	var payload RecordCreated
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("%w: %s: %w", event.ErrInvalidPayload, ActivityHandlerName, err)
	}

	return p.binder.InTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		written, err := p.repo.InsertActivity(ctx, tx, Activity{
			RecordID:   payload.RecordID,
			EventID:    env.ID,
			Action:     ActionCreated,
			Actor:      env.Metadata.Actor,
			OccurredAt: env.Metadata.Timestamp,
		})
		if err != nil {
			return err
		}
		if !written {
			p.logger.DebugContext(ctx, "activity already projected", logger.EnvelopeID(env.ID))
		}
		return nil
	})
}

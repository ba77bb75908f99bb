package records

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

const (
	EventRecordCreated = "records.record_created"

	// CommandCreateRecord names CreateRecord for callers that send commands
	// by name.
	CommandCreateRecord = "records.create"

	ActionCreated = "created"

	MaxTitleLength = 200
)

// Record is the tenant-scoped aggregate. TenantID is assigned by the
// database from the session binding.
type Record struct {
	ID        uuid.UUID `json:"id"`
	TenantID  tenant.ID `json:"tenant_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Activity is one projected entry of a record's history.
type Activity struct {
	ID         int64     `json:"id"`
	RecordID   uuid.UUID `json:"record_id"`
	EventID    uuid.UUID `json:"event_id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CreateRecord asks to store a new record for Tenant.
type CreateRecord struct {
	Tenant   tenant.ID `json:"tenant_id"`
	RecordID uuid.UUID `json:"record_id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
}

func (c CreateRecord) TenantID() tenant.ID { return c.Tenant }

// Validate checks the command fields.
func (c CreateRecord) Validate() error {
	switch {
	case c.RecordID == uuid.Nil:
		return ErrRecordIDRequired
	case c.Title == "":
		return ErrTitleRequired
	case utf8.RuneCountInString(c.Title) > MaxTitleLength:
		return ErrTitleTooLong
	}
	return nil
}

// RecordCreated is emitted once a record is stored.
type RecordCreated struct {
	RecordID uuid.UUID `json:"record_id"`
	Title    string    `json:"title"`
}

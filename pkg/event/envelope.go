package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// Metadata is stamped on an envelope when it is emitted and never changes
// afterwards. Asynchronous handlers derive their identity from it alone.
type Metadata struct {
	TenantID      tenant.ID `json:"tenant_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Actor         string    `json:"actor,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Envelope is a stored, stamped event.
type Envelope struct {
	ID       uuid.UUID       `json:"id"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Metadata Metadata        `json:"metadata"`
	// Sequence is assigned by the Store on append and orders replay.
	Sequence int64 `json:"sequence"`
}

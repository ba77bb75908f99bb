package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ID identifies a tenant. It is an opaque, immutable value compared by
// equality; the zero value means "no tenant" and is never bound.
type ID struct {
	u uuid.UUID
}

// Nil is the zero ID.
var Nil ID

// New generates a random tenant ID.
func New() ID {
	return ID{u: uuid.New()}
}

// FromUUID wraps an existing UUID.
func FromUUID(u uuid.UUID) ID {
	return ID{u: u}
}

// Parse decodes a canonical UUID string into an ID.
// Returns ErrInvalidID for malformed input and for the nil UUID.
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil || u == uuid.Nil {
		return Nil, ErrInvalidID
	}
	return ID{u: u}, nil
}

// MustParse is like Parse but panics on invalid input.
// Intended for tests and static fixtures.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic("tenant: invalid id " + s)
	}
	return id
}

// IsZero reports whether id is the zero ID.
func (id ID) IsZero() bool { return id.u == uuid.Nil }

// UUID returns the underlying UUID.
func (id ID) UUID() uuid.UUID { return id.u }

func (id ID) String() string {
	if id.IsZero() {
		return ""
	}
	return id.u.String()
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// An empty input decodes to the zero ID.
func (id *ID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*id = Nil
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Principal is what the identity layer hands over after validating a credential.
type Principal struct {
	TenantID  ID        `json:"tenant_id"`
	Actor     string    `json:"actor,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Resolver turns a credential into a Principal.
// Implementations validate the credential; this package trusts the result.
type Resolver interface {
	ResolveTenant(ctx context.Context, credential string) (Principal, error)
}

// ResolverFunc adapts an ordinary function to the Resolver interface.
type ResolverFunc func(ctx context.Context, credential string) (Principal, error)

// ResolveTenant calls f.
func (f ResolverFunc) ResolveTenant(ctx context.Context, credential string) (Principal, error) {
	return f(ctx, credential)
}

package identity

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// StaticResolver maps fixed credentials to principals.
// Meant for development and tests.
type StaticResolver struct {
	entries map[string]tenant.Principal
}

func NewStaticResolver(entries map[string]tenant.Principal) *StaticResolver {
	m := make(map[string]tenant.Principal, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	return &StaticResolver{entries: m}
}

// ParseStatic builds a StaticResolver from a comma separated list of
// "credential=tenant-uuid[/actor]" entries.
func ParseStatic(list string) (*StaticResolver, error) {
	entries := make(map[string]tenant.Principal)
	for raw := range strings.SplitSeq(list, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		cred, rest, ok := strings.Cut(raw, "=")
		if !ok || cred == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStaticEntry, raw)
		}
		tid, actor, _ := strings.Cut(rest, "/")
		id, err := tenant.Parse(tid)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidStaticEntry, raw, err)
		}
		entries[cred] = tenant.Principal{TenantID: id, Actor: actor}
	}
	return &StaticResolver{entries: entries}, nil
}

// ResolveTenant implements tenant.Resolver.
func (s *StaticResolver) ResolveTenant(_ context.Context, credential string) (tenant.Principal, error) {
	for k, p := range s.entries {
		if subtle.ConstantTimeCompare([]byte(k), []byte(credential)) == 1 {
			return p, nil
		}
	}
	return tenant.Principal{}, ErrUnknownCredential
}

// Len reports how many credentials are configured.
func (s *StaticResolver) Len() int { return len(s.entries) }

package identity

import "errors"

var (
	ErrInvalidToken       = errors.New("identity: invalid token")
	ErrMissingTenantClaim = errors.New("identity: token has no tenant claim")
	ErrWeakSecret         = errors.New("identity: signing secret must be at least 32 bytes")
	ErrUnknownCredential  = errors.New("identity: unknown credential")
	ErrInvalidStaticEntry = errors.New("identity: invalid static credential entry")
	ErrNilResolver        = errors.New("identity: resolver is nil")
	ErrCacheUnavailable   = errors.New("identity: cache unavailable")
)

package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/dmitrymomot/tenantguard/pkg/tenant"
)

// MinSecretLength is the shortest HMAC secret accepted by NewJWTResolver.
const MinSecretLength = 32

// Claims is the token body understood by JWTResolver.
// The tenant travels in "tid", the actor in "sub".
type Claims struct {
	TenantID string `json:"tid"`
	jwt.RegisteredClaims
}

// JWTResolver validates HMAC-signed tokens and turns them into principals.
type JWTResolver struct {
	secret   []byte
	issuer   string
	audience string
	method   jwt.SigningMethod
	parser   *jwt.Parser
	now      func() time.Time
}

// JWTOption configures a JWTResolver.
type JWTOption func(*JWTResolver)

// WithIssuer requires and stamps the "iss" claim.
func WithIssuer(iss string) JWTOption {
	return func(r *JWTResolver) { r.issuer = iss }
}

// WithAudience requires and stamps the "aud" claim.
func WithAudience(aud string) JWTOption {
	return func(r *JWTResolver) { r.audience = aud }
}

// WithSigningMethod selects HS256, HS384 or HS512. Other methods are ignored.
func WithSigningMethod(m *jwt.SigningMethodHMAC) JWTOption {
	return func(r *JWTResolver) {
		if m != nil {
			r.method = m
		}
	}
}

// WithJWTClock overrides the clock used when issuing tokens.
func WithJWTClock(now func() time.Time) JWTOption {
	return func(r *JWTResolver) {
		if now != nil {
			r.now = now
		}
	}
}

func NewJWTResolver(secret []byte, opts ...JWTOption) (*JWTResolver, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	r := &JWTResolver{
		secret: secret,
		method: jwt.SigningMethodHS256,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.parser = jwt.NewParser(jwt.WithValidMethods([]string{r.method.Alg()}))
	return r, nil
}

// ResolveTenant implements tenant.Resolver.
func (r *JWTResolver) ResolveTenant(_ context.Context, credential string) (tenant.Principal, error) {
	claims := &Claims{}
	_, err := r.parser.ParseWithClaims(credential, claims, func(*jwt.Token) (any, error) {
		return r.secret, nil
	})
	if err != nil {
		return tenant.Principal{}, errors.Join(ErrInvalidToken, err)
	}
	if r.issuer != "" && !claims.VerifyIssuer(r.issuer, true) {
		return tenant.Principal{}, fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	}
	if r.audience != "" && !claims.VerifyAudience(r.audience, true) {
		return tenant.Principal{}, fmt.Errorf("%w: unexpected audience", ErrInvalidToken)
	}
	if claims.TenantID == "" {
		return tenant.Principal{}, ErrMissingTenantClaim
	}
	id, err := tenant.Parse(claims.TenantID)
	if err != nil {
		return tenant.Principal{}, errors.Join(ErrInvalidToken, err)
	}

	p := tenant.Principal{TenantID: id, Actor: claims.Subject}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// Issue signs a token for p that expires after ttl. A non-positive ttl
// issues a token without expiry.
func (r *JWTResolver) Issue(p tenant.Principal, ttl time.Duration) (string, error) {
	if p.TenantID.IsZero() {
		return "", tenant.ErrInvalidID
	}
	now := r.now()
	claims := Claims{
		TenantID: p.TenantID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  p.Actor,
			Issuer:   r.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if r.audience != "" {
		claims.Audience = jwt.ClaimStrings{r.audience}
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(r.method, claims).SignedString(r.secret)
	if err != nil {
		return "", fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, nil
}

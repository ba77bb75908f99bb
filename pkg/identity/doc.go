// Package identity turns request credentials into tenant principals.
//
// JWTResolver validates HMAC-signed tokens whose "tid" claim names the tenant
// and whose "sub" claim names the actor. StaticResolver serves fixed
// credentials for development. CachingResolver wraps either one and keeps
// resolved principals in a Cache, keyed by a BLAKE2b fingerprint of the
// credential and never longer than the principal's own expiry.
//
//	jwtr, err := identity.NewJWTResolver(secret, identity.WithIssuer("tenantd"))
//	if err != nil {
//		return err
//	}
//	resolver, err := identity.NewCachingResolver(jwtr, identity.NewRedisCache(rdb), time.Minute)
//
// All resolvers implement tenant.Resolver and plug into tenant.Middleware.
package identity

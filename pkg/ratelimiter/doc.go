// Package ratelimiter enforces per-tenant request quotas with a token bucket.
//
// Every tenant owns one bucket holding up to Capacity tokens; RefillRate
// tokens are added every RefillInterval. A request consumes one token and is
// rejected with ErrLimitExceeded once the bucket is empty, so a single busy
// tenant cannot exhaust the capacity shared by the others.
//
//	store := ratelimiter.NewMemoryStore()
//	defer store.Close()
//
//	bucket, err := ratelimiter.NewBucket(store, ratelimiter.Config{
//		Capacity:       100,
//		RefillRate:     10,
//		RefillInterval: time.Second,
//	})
//	if err != nil {
//		return err
//	}
//
//	r.Use(tenant.RequireTenant(onError), ratelimiter.Middleware(bucket, onError))
//
// MemoryStore keeps buckets in process. RedisStore shares them between
// replicas and updates a bucket atomically with a server-side script.
//
// The middleware keys buckets by the active tenant and never by anything
// taken from the request, so a caller cannot spend another tenant's quota.
package ratelimiter

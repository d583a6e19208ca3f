// Package ratelimiter provides token bucket rate limiting with in-memory and
// Redis storage and HTTP middleware.
//
// A bucket holds up to Capacity tokens and gains RefillRate tokens every
// RefillInterval. Each request takes one token; a negative remaining count
// denies the request.
//
// # Basic Usage
//
//	store := ratelimiter.NewMemoryStore()
//	defer store.Close()
//
//	limiter, err := ratelimiter.NewBucket(store, ratelimiter.Config{
//		Capacity:       100,
//		RefillRate:     10,
//		RefillInterval: time.Second,
//	})
//	if err != nil {
//		return err
//	}
//
//	result, err := limiter.Allow(ctx, "org:123")
//	if err == nil && !result.Allowed() {
//		// retry after result.RetryAfter()
//	}
//
// # Per-request Limits
//
// DynamicMiddleware resolves the bucket configuration for every request,
// so the limit can follow the caller's subscription plan:
//
//	mw := ratelimiter.DynamicMiddleware(store, keyFunc,
//		entitlement.RateLimitConfig(svc, base, nil),
//	)
//
// A ConfigFunc reporting limited=false lets the request through untouched.
//
// # Distributed Limits
//
// RedisStore keeps buckets in Redis hashes and updates them with a Lua
// script, so every instance sees the same bucket:
//
//	store := ratelimiter.NewRedisStore(client, ratelimiter.WithKeyPrefix("api"))
//
// # Headers
//
// Both middlewares set X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset, plus Retry-After on rejection. WithErrorResponder
// replaces the default error bodies.
package ratelimiter

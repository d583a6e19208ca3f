// Package cache provides a generic, thread-safe LRU cache with optional
// time-based expiry.
//
// The entitlement package uses it to keep loaded plans in memory between
// plan source reloads, so hot paths like rate limiting do not hit the
// database on every request.
//
// # Usage
//
//	c := cache.NewLRUCache[string, entitlement.Plan](128, cache.WithTTL(5*time.Minute))
//	c.Put("pro", plan)
//	if p, ok := c.Get("pro"); ok {
//		_ = p
//	}
//
// Expired entries are not returned and are dropped the next time they are
// looked up. Capacity eviction always removes the least recently used entry.
// An optional eviction callback runs for evicted, expired and removed entries.
package cache

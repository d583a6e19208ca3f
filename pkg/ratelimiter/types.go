package ratelimiter

import "time"

// Result is the bucket state after a consume.
type Result struct {
	Limit     int       // bucket capacity
	Remaining int       // negative when the request was denied
	ResetAt   time.Time // next refill
}

// Allowed reports whether the consume fit in the bucket.
func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter returns the wait until the next refill, rounded up to a whole
// second, or 0 for allowed requests.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed() {
		return 0
	}
	d := time.Until(r.ResetAt)
	if d <= 0 {
		return 0
	}
	return d.Truncate(time.Second) + time.Second
}

// Config describes a token bucket: Capacity tokens at most, RefillRate tokens
// added every RefillInterval.
type Config struct {
	Capacity       int
	RefillRate     int
	RefillInterval time.Duration
}

// WithCapacity returns a copy refilling the whole bucket of n tokens per
// interval. n below 1 still refills one token.
func (c Config) WithCapacity(n int) Config {
	c.Capacity = n
	c.RefillRate = max(n, 1)
	return c
}

package ratelimiter

import (
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxKeyLength is the maximum allowed length for a rate limit key
// to prevent excessively long storage keys.
const maxKeyLength = 64

// KeyFunc extracts a rate limit key from the request.
type KeyFunc func(r *http.Request) string

// ConfigFunc resolves the bucket configuration for a request.
// limited=false lets the request through without touching the store.
type ConfigFunc func(r *http.Request) (cfg Config, limited bool, err error)

// ErrorResponder writes the response for rejected or failed requests.
// Exactly one of result and err is set.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, result *Result, err error)

// MiddlewareOption configures the rate limit middleware.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	responder ErrorResponder
}

// WithErrorResponder replaces the default plain-text error responses.
func WithErrorResponder(fn ErrorResponder) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.responder = fn
		}
	}
}

// Composite combines multiple key functions into one.
// Long keys (>64 chars) are hashed using FNV-1a for storage efficiency.
func Composite(keyFuncs ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(keyFuncs))
		for _, fn := range keyFuncs {
			if key := fn(r); key != "" {
				parts = append(parts, key)
			}
		}

		if len(parts) == 0 {
			return ""
		}
		if len(parts) == 1 && len(parts[0]) <= maxKeyLength {
			return parts[0]
		}

		combined := strings.Join(parts, ":")
		if len(combined) > maxKeyLength {
			h := fnv.New64a()
			h.Write([]byte(combined))
			// Base36 keeps the hash to ~13 chars
			return strconv.FormatUint(h.Sum64(), 36)
		}

		return combined
	}
}

// Middleware rate limits requests with a fixed bucket configuration.
func Middleware(limiter RateLimiter, keyFunc KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := newMiddlewareConfig(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result, err := limiter.Allow(r.Context(), keyFunc(r))
			serve(w, r, next, cfg, result, err)
		})
	}
}

// DynamicMiddleware rate limits requests with a configuration resolved per
// request, e.g. from the caller's subscription plan. A configuration with
// zero capacity rejects every request.
func DynamicMiddleware(store Store, keyFunc KeyFunc, configFunc ConfigFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := newMiddlewareConfig(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bucket, limited, err := configFunc(r)
			if err != nil {
				cfg.responder(w, r, nil, err)
				return
			}
			if !limited {
				next.ServeHTTP(w, r)
				return
			}
			if bucket.Capacity == 0 {
				serve(w, r, next, cfg, &Result{Remaining: -1, ResetAt: time.Now().Add(bucket.RefillInterval)}, nil)
				return
			}
			if err := bucket.Validate(); err != nil {
				cfg.responder(w, r, nil, err)
				return
			}

			result, err := consume(r.Context(), store, keyFunc(r), 1, bucket)
			serve(w, r, next, cfg, result, err)
		})
	}
}

func newMiddlewareConfig(opts []MiddlewareOption) *middlewareConfig {
	cfg := &middlewareConfig{responder: defaultResponder}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func serve(w http.ResponseWriter, r *http.Request, next http.Handler, cfg *middlewareConfig, result *Result, err error) {
	if err != nil {
		cfg.responder(w, r, nil, err)
		return
	}

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, result.Remaining)))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

	if !result.Allowed() {
		cfg.responder(w, r, result, nil)
		return
	}

	next.ServeHTTP(w, r)
}

func defaultResponder(w http.ResponseWriter, r *http.Request, result *Result, err error) {
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if retryAfter := int(result.RetryAfter().Seconds()); retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
}

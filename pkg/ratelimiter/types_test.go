package ratelimiter_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/entitlements/pkg/ratelimiter"
)

func TestConfig_WithCapacity(t *testing.T) {
	t.Parallel()

	base := ratelimiter.Config{Capacity: 60, RefillRate: 60, RefillInterval: time.Minute}

	cfg := base.WithCapacity(1000)
	assert.Equal(t, 1000, cfg.Capacity)
	assert.Equal(t, 1000, cfg.RefillRate)
	assert.Equal(t, time.Minute, cfg.RefillInterval)
	assert.Equal(t, 60, base.Capacity)

	zero := base.WithCapacity(0)
	assert.Equal(t, 0, zero.Capacity)
	assert.Equal(t, 1, zero.RefillRate)
}

func TestResult_RetryAfter(t *testing.T) {
	t.Parallel()

	allowed := &ratelimiter.Result{Limit: 5, Remaining: 0, ResetAt: time.Now().Add(time.Minute)}
	assert.True(t, allowed.Allowed())
	assert.Zero(t, allowed.RetryAfter())

	denied := &ratelimiter.Result{Limit: 5, Remaining: -1, ResetAt: time.Now().Add(1500 * time.Millisecond)}
	assert.False(t, denied.Allowed())
	assert.Equal(t, 2*time.Second, denied.RetryAfter())

	stale := &ratelimiter.Result{Limit: 5, Remaining: -1, ResetAt: time.Now().Add(-time.Second)}
	assert.Zero(t, stale.RetryAfter())
}

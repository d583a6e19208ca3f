package entitlement_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
)

func TestCurrentWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.February, 29, 23, 30, 0, 0, time.FixedZone("UTC+3", 3*60*60))

	t.Run("lifetime", func(t *testing.T) {
		t.Parallel()

		w := entitlement.CurrentWindow(entitlement.PeriodLifetime, now)
		assert.True(t, w.Unbounded())
		assert.Nil(t, w.EndsAtPtr())
		assert.Equal(t, time.Unix(0, 0).UTC(), w.StartsAt)
		assert.True(t, w.Contains(now))
		assert.Equal(t, w, entitlement.CurrentWindow(entitlement.PeriodLifetime, now.AddDate(10, 0, 0)))
	})

	t.Run("monthly uses UTC calendar month", func(t *testing.T) {
		t.Parallel()

		w := entitlement.CurrentWindow(entitlement.PeriodMonthly, now)
		assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), w.StartsAt)
		assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), w.EndsAt)
		assert.True(t, w.Contains(now))
		assert.False(t, w.Contains(w.EndsAt))
		assert.NotNil(t, w.EndsAtPtr())
	})

	t.Run("yearly", func(t *testing.T) {
		t.Parallel()

		w := entitlement.CurrentWindow(entitlement.PeriodYearly, now)
		assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), w.StartsAt)
		assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), w.EndsAt)
		assert.False(t, w.Contains(w.StartsAt.Add(-time.Nanosecond)))
	})
}

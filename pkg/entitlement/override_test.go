package entitlement_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
)

func TestResolveOverride(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	override := func(v int64, created, updated time.Time, expires *time.Time) entitlement.Override {
		return entitlement.Override{
			ID:        uuid.New(),
			Feature:   entitlement.FeatureWorkspaces,
			Value:     entitlement.Limit(v),
			ExpiresAt: expires,
			CreatedAt: created,
			UpdatedAt: updated,
		}
	}

	t.Run("none", func(t *testing.T) {
		t.Parallel()

		_, ok := entitlement.ResolveOverride(nil, now)
		assert.False(t, ok)
	})

	t.Run("expired ignored", func(t *testing.T) {
		t.Parallel()

		_, ok := entitlement.ResolveOverride([]entitlement.Override{override(20, past, past, &past)}, now)
		assert.False(t, ok)
	})

	t.Run("expiry boundary is exclusive", func(t *testing.T) {
		t.Parallel()

		_, ok := entitlement.ResolveOverride([]entitlement.Override{override(20, past, past, &now)}, now)
		assert.False(t, ok)
	})

	t.Run("latest update wins", func(t *testing.T) {
		t.Parallel()

		older := override(5, past, past, nil)
		newer := override(9, past, now, &future)
		got, ok := entitlement.ResolveOverride([]entitlement.Override{newer, older}, now)
		assert.True(t, ok)
		assert.Equal(t, entitlement.Limit(9), got.Value)
	})

	t.Run("creation time breaks update ties", func(t *testing.T) {
		t.Parallel()

		a := override(5, past.Add(-time.Hour), now, nil)
		b := override(7, past, now, nil)
		got, ok := entitlement.ResolveOverride([]entitlement.Override{b, a}, now)
		assert.True(t, ok)
		assert.Equal(t, entitlement.Limit(7), got.Value)
	})

	t.Run("ID breaks full ties", func(t *testing.T) {
		t.Parallel()

		a := override(5, past, now, nil)
		b := override(7, past, now, nil)
		a.ID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
		b.ID = uuid.MustParse("ffffffff-0000-0000-0000-000000000000")

		got, _ := entitlement.ResolveOverride([]entitlement.Override{a, b}, now)
		assert.Equal(t, b.ID, got.ID)
		got, _ = entitlement.ResolveOverride([]entitlement.Override{b, a}, now)
		assert.Equal(t, b.ID, got.ID)
	})
}

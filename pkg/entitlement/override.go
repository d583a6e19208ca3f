package entitlement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Override is an organization-specific exception to its plan's value for one feature.
type Override struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	Feature        Feature    `json:"feature"`
	Value          Value      `json:"value"`
	Reason         string     `json:"reason,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// ActiveAt reports whether the override is in effect at the given time.
// An override without expiry never lapses.
func (o Override) ActiveAt(now time.Time) bool {
	return o.ExpiresAt == nil || o.ExpiresAt.After(now)
}

// OverrideStore persists organization overrides.
// Implementations keep at most one row per (organization, feature).
type OverrideStore interface {
	// ListOverrides returns every override for the pair, expired ones included.
	ListOverrides(ctx context.Context, orgID uuid.UUID, f Feature) ([]Override, error)

	// SaveOverride creates or replaces the override for (organization, feature).
	SaveOverride(ctx context.Context, o Override) error

	// DeleteOverride removes the override. Returns ErrOverrideNotFound if none exists.
	DeleteOverride(ctx context.Context, orgID uuid.UUID, f Feature) error
}

// ResolveOverride picks the override in effect at now.
// Expired overrides are ignored. When several are active the most recently
// updated wins, then the most recently created, then the greatest ID.
func ResolveOverride(overrides []Override, now time.Time) (Override, bool) {
	var (
		best  Override
		found bool
	)
	for _, o := range overrides {
		if !o.ActiveAt(now) {
			continue
		}
		if !found || newerOverride(o, best) {
			best, found = o, true
		}
	}
	return best, found
}

func newerOverride(a, b Override) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}

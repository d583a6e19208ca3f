package entitlement

import (
	"context"

	"github.com/google/uuid"
)

// Allocation is a workspace's carve-out of an organization-wide,
// workspace-scoped limit. Allocated may be Unlimited.
type Allocation struct {
	WorkspaceID    uuid.UUID `json:"workspace_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Feature        Feature   `json:"feature"`
	Allocated      int64     `json:"allocated"`
}

// Value returns the allocation as a limit value.
func (a Allocation) Value() Value {
	return Limit(a.Allocated)
}

// AllocationStore persists workspace allocations.
type AllocationStore interface {
	// GetAllocation returns ErrAllocationNotFound when the workspace has no
	// allocation for the feature.
	GetAllocation(ctx context.Context, workspaceID uuid.UUID, f Feature) (Allocation, error)

	// SaveAllocation creates or replaces the allocation for (workspace, feature).
	SaveAllocation(ctx context.Context, a Allocation) error

	// DeleteAllocation returns ErrAllocationNotFound if none exists.
	DeleteAllocation(ctx context.Context, workspaceID uuid.UUID, f Feature) error
}

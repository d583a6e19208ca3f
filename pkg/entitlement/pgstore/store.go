package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/pg"
)

// DB is satisfied by *pgxpool.Pool.
type DB interface {
	pg.DBTX
	pg.TxBeginner
}

// Store is the PostgreSQL implementation of the entitlement stores.
type Store struct {
	db  DB
	now func() time.Time
}

var (
	_ entitlement.OverrideStore     = (*Store)(nil)
	_ entitlement.AllocationStore   = (*Store)(nil)
	_ entitlement.UsageStore        = (*Store)(nil)
	_ entitlement.UsageHistoryStore = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the time source for row timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a store over the pool.
func New(db DB, opts ...Option) *Store {
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// q returns the caller's transaction when the context carries one.
func (s *Store) q(ctx context.Context) pg.DBTX {
	return pg.Querier(ctx, s.db)
}

const listOverridesQuery = `
SELECT id, organization_id, feature_key, value, reason, expires_at, created_at, updated_at
FROM organization_feature_overrides
WHERE organization_id = $1 AND feature_key = $2`

// ListOverrides implements entitlement.OverrideStore.
func (s *Store) ListOverrides(ctx context.Context, orgID uuid.UUID, f entitlement.Feature) ([]entitlement.Override, error) {
	rows, err := s.q(ctx).Query(ctx, listOverridesQuery, orgID, string(f))
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (entitlement.Override, error) {
		var (
			o   entitlement.Override
			key string
			raw string
		)
		if err := row.Scan(&o.ID, &o.OrganizationID, &key, &raw, &o.Reason, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return o, err
		}
		v, err := entitlement.ParseValue(raw)
		if err != nil {
			return o, err
		}
		o.Feature = entitlement.Feature(key)
		o.Value = v
		return o, nil
	})
}

const saveOverrideQuery = `
INSERT INTO organization_feature_overrides
    (id, organization_id, feature_key, value, reason, expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
ON CONFLICT ON CONSTRAINT organization_feature_overrides_org_feature_key DO UPDATE
SET value = EXCLUDED.value,
    reason = EXCLUDED.reason,
    expires_at = EXCLUDED.expires_at,
    updated_at = EXCLUDED.updated_at`

// SaveOverride implements entitlement.OverrideStore.
func (s *Store) SaveOverride(ctx context.Context, o entitlement.Override) error {
	if o.Value.IsAbsent() {
		return entitlement.ErrInvalidValue
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}

	_, err := s.q(ctx).Exec(ctx, saveOverrideQuery,
		o.ID, o.OrganizationID, string(o.Feature), o.Value.String(), o.Reason, o.ExpiresAt, s.now().UTC())
	if pg.IsForeignKeyViolationError(err) {
		return errors.Join(entitlement.ErrUnknownFeature, err)
	}
	return err
}

// DeleteOverride implements entitlement.OverrideStore.
func (s *Store) DeleteOverride(ctx context.Context, orgID uuid.UUID, f entitlement.Feature) error {
	tag, err := s.q(ctx).Exec(ctx,
		`DELETE FROM organization_feature_overrides WHERE organization_id = $1 AND feature_key = $2`,
		orgID, string(f))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entitlement.ErrOverrideNotFound
	}
	return nil
}

// GetAllocation implements entitlement.AllocationStore.
func (s *Store) GetAllocation(ctx context.Context, workspaceID uuid.UUID, f entitlement.Feature) (entitlement.Allocation, error) {
	a := entitlement.Allocation{WorkspaceID: workspaceID, Feature: f}
	err := s.q(ctx).QueryRow(ctx,
		`SELECT organization_id, allocated FROM workspace_feature_limits WHERE workspace_id = $1 AND feature_key = $2`,
		workspaceID, string(f),
	).Scan(&a.OrganizationID, &a.Allocated)
	if pg.IsNotFoundError(err) {
		return entitlement.Allocation{}, entitlement.ErrAllocationNotFound
	}
	if err != nil {
		return entitlement.Allocation{}, err
	}
	return a, nil
}

const saveAllocationQuery = `
INSERT INTO workspace_feature_limits (workspace_id, organization_id, feature_key, allocated, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (workspace_id, feature_key) DO UPDATE
SET organization_id = EXCLUDED.organization_id,
    allocated = EXCLUDED.allocated,
    updated_at = EXCLUDED.updated_at`

// SaveAllocation implements entitlement.AllocationStore.
func (s *Store) SaveAllocation(ctx context.Context, a entitlement.Allocation) error {
	if a.Allocated < entitlement.Unlimited {
		return entitlement.ErrInvalidValue
	}

	_, err := s.q(ctx).Exec(ctx, saveAllocationQuery,
		a.WorkspaceID, a.OrganizationID, string(a.Feature), a.Allocated, s.now().UTC())
	if pg.IsForeignKeyViolationError(err) {
		return errors.Join(entitlement.ErrUnknownFeature, err)
	}
	return err
}

// DeleteAllocation implements entitlement.AllocationStore.
func (s *Store) DeleteAllocation(ctx context.Context, workspaceID uuid.UUID, f entitlement.Feature) error {
	tag, err := s.q(ctx).Exec(ctx,
		`DELETE FROM workspace_feature_limits WHERE workspace_id = $1 AND feature_key = $2`,
		workspaceID, string(f))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entitlement.ErrAllocationNotFound
	}
	return nil
}

package pgstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/pg"
)

const usageColumns = `id, organization_id, workspace_id, feature_key, current_usage,
    period_type, period_starts_at, period_ends_at, created_at, updated_at`

// Without a workspace ($5 IS NULL) the sum covers every row of the window.
const usageQuery = `
SELECT COALESCE(SUM(current_usage), 0)::BIGINT
FROM usage_tracking
WHERE organization_id = $1 AND feature_key = $2 AND period_type = $3 AND period_starts_at = $4
  AND ($5::UUID IS NULL OR workspace_id = $5)`

const initWindowQuery = `
INSERT INTO usage_tracking (` + usageColumns + `)
VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8, $8)
ON CONFLICT ON CONSTRAINT usage_tracking_window_key DO NOTHING`

const selectRowQuery = `
SELECT ` + usageColumns + `
FROM usage_tracking
WHERE organization_id = $1 AND feature_key = $2 AND period_type = $3 AND period_starts_at = $4
  AND workspace_id IS NOT DISTINCT FROM $5`

const incrementQuery = `
INSERT INTO usage_tracking (` + usageColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
ON CONFLICT ON CONSTRAINT usage_tracking_window_key DO UPDATE
SET current_usage = usage_tracking.current_usage + EXCLUDED.current_usage,
    updated_at = EXCLUDED.updated_at`

const decrementQuery = `
UPDATE usage_tracking
SET current_usage = GREATEST(current_usage - $6, 0), updated_at = $7
WHERE organization_id = $1 AND feature_key = $2 AND period_type = $3 AND period_starts_at = $4
  AND workspace_id IS NOT DISTINCT FROM $5`

const historyQuery = `
SELECT ` + usageColumns + `
FROM usage_tracking
WHERE organization_id = $1 AND feature_key = $2
ORDER BY period_starts_at DESC, workspace_id NULLS FIRST`

// Usage implements entitlement.UsageStore.
func (s *Store) Usage(ctx context.Context, key entitlement.UsageKey) (int64, error) {
	return s.usage(ctx, s.q(ctx), key)
}

func (s *Store) usage(ctx context.Context, q pg.DBTX, key entitlement.UsageKey) (int64, error) {
	var n int64
	err := q.QueryRow(ctx, usageQuery,
		key.OrganizationID, string(key.Feature), string(key.Window.Period), key.Window.StartsAt, key.WorkspaceID,
	).Scan(&n)
	return n, err
}

// InitWindow implements entitlement.UsageStore.
func (s *Store) InitWindow(ctx context.Context, key entitlement.UsageKey) (entitlement.UsageRecord, error) {
	q := s.q(ctx)
	if _, err := q.Exec(ctx, initWindowQuery,
		uuid.New(), key.OrganizationID, key.WorkspaceID, string(key.Feature),
		string(key.Window.Period), key.Window.StartsAt, key.Window.EndsAtPtr(), s.now().UTC(),
	); err != nil {
		return entitlement.UsageRecord{}, err
	}

	rows, err := q.Query(ctx, selectRowQuery,
		key.OrganizationID, string(key.Feature), string(key.Window.Period), key.Window.StartsAt, key.WorkspaceID)
	if err != nil {
		return entitlement.UsageRecord{}, err
	}
	return pgx.CollectExactlyOneRow(rows, scanUsageRecord)
}

// Increment implements entitlement.UsageStore.
func (s *Store) Increment(ctx context.Context, key entitlement.UsageKey, amount int64) (int64, error) {
	var n int64
	err := s.locked(ctx, key, func(ctx context.Context, q pg.DBTX) error {
		if err := s.add(ctx, q, key, amount); err != nil {
			return err
		}
		var err error
		n, err = s.usage(ctx, q, key)
		return err
	})
	return n, err
}

// IncrementWithin implements entitlement.UsageStore.
func (s *Store) IncrementWithin(ctx context.Context, key entitlement.UsageKey, amount, limit int64) (int64, bool, error) {
	var (
		n  int64
		ok bool
	)
	err := s.locked(ctx, key, func(ctx context.Context, q pg.DBTX) error {
		current, err := s.usage(ctx, q, key)
		if err != nil {
			return err
		}
		if !entitlement.Fits(current, amount, limit) {
			n = current
			return nil
		}
		if err := s.add(ctx, q, key, amount); err != nil {
			return err
		}
		n, ok = current+amount, true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return n, ok, nil
}

// Decrement implements entitlement.UsageStore.
func (s *Store) Decrement(ctx context.Context, key entitlement.UsageKey, amount int64) (int64, error) {
	var n int64
	err := s.locked(ctx, key, func(ctx context.Context, q pg.DBTX) error {
		if _, err := q.Exec(ctx, decrementQuery,
			key.OrganizationID, string(key.Feature), string(key.Window.Period), key.Window.StartsAt, key.WorkspaceID,
			amount, s.now().UTC(),
		); err != nil {
			return err
		}
		var err error
		n, err = s.usage(ctx, q, key)
		return err
	})
	return n, err
}

// History implements entitlement.UsageHistoryStore.
func (s *Store) History(ctx context.Context, orgID uuid.UUID, f entitlement.Feature) ([]entitlement.UsageRecord, error) {
	rows, err := s.q(ctx).Query(ctx, historyQuery, orgID, string(f))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanUsageRecord)
}

// locked runs fn in a transaction holding the advisory lock of the key's
// window. The lock is released when the transaction ends.
func (s *Store) locked(ctx context.Context, key entitlement.UsageKey, fn func(ctx context.Context, q pg.DBTX) error) error {
	return pg.InTx(ctx, s.db, func(ctx context.Context) error {
		q := s.q(ctx)
		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key.WindowKey()); err != nil {
			return err
		}
		return fn(ctx, q)
	})
}

func (s *Store) add(ctx context.Context, q pg.DBTX, key entitlement.UsageKey, amount int64) error {
	_, err := q.Exec(ctx, incrementQuery,
		uuid.New(), key.OrganizationID, key.WorkspaceID, string(key.Feature), amount,
		string(key.Window.Period), key.Window.StartsAt, key.Window.EndsAtPtr(), s.now().UTC(),
	)
	if pg.IsCheckViolationError(err) {
		return errors.Join(entitlement.ErrInvalidAmount, err)
	}
	return err
}

func scanUsageRecord(row pgx.CollectableRow) (entitlement.UsageRecord, error) {
	var (
		r       entitlement.UsageRecord
		feature string
		period  string
	)
	err := row.Scan(&r.ID, &r.OrganizationID, &r.WorkspaceID, &feature, &r.CurrentUsage,
		&period, &r.PeriodStartsAt, &r.PeriodEndsAt, &r.CreatedAt, &r.UpdatedAt)
	r.Feature = entitlement.Feature(feature)
	r.Period = entitlement.Period(period)
	r.PeriodStartsAt = r.PeriodStartsAt.UTC()
	return r, err
}

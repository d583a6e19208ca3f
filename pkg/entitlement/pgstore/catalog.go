package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/pg"
)

const featuresQuery = `
SELECT key, name, description, type, period, scope, category, active
FROM features
ORDER BY key`

// LoadCatalog builds the catalog from the features table.
func LoadCatalog(ctx context.Context, db pg.DBTX) (*entitlement.Catalog, error) {
	rows, err := pg.Querier(ctx, db).Query(ctx, featuresQuery)
	if err != nil {
		return nil, errors.Join(entitlement.ErrStorage, err)
	}

	defs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entitlement.Definition, error) {
		var (
			d                    entitlement.Definition
			key, typ, per, scope string
		)
		err := row.Scan(&key, &d.Name, &d.Description, &typ, &per, &scope, &d.Category, &d.Active)
		d.Key = entitlement.Feature(key)
		d.Type = entitlement.Type(typ)
		d.Period = entitlement.Period(per)
		d.Scope = entitlement.Scope(scope)
		return d, err
	})
	if err != nil {
		return nil, errors.Join(entitlement.ErrStorage, err)
	}

	return entitlement.NewCatalog(defs...)
}

// PlanSource loads plans from the plans and plan_limits tables.
// Wrap it in entitlement.NewPlanRegistry for caching.
type PlanSource struct {
	db pg.DBTX
}

// NewPlanSource creates a plan source over the pool.
func NewPlanSource(db pg.DBTX) *PlanSource {
	return &PlanSource{db: db}
}

const plansQuery = `
SELECT p.id, p.name, p.description, p.public, l.feature_key, l.value
FROM plans p
LEFT JOIN plan_limits l ON l.plan_id = p.id
ORDER BY p.id, l.feature_key`

// Load implements entitlement.PlanSource.
func (s *PlanSource) Load(ctx context.Context) (map[string]entitlement.Plan, error) {
	rows, err := pg.Querier(ctx, s.db).Query(ctx, plansQuery)
	if err != nil {
		return nil, errors.Join(entitlement.ErrFailedToLoadPlans, err)
	}
	defer rows.Close()

	plans := make(map[string]entitlement.Plan)
	for rows.Next() {
		var (
			p       entitlement.Plan
			feature *string
			raw     *string
		)
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Public, &feature, &raw); err != nil {
			return nil, errors.Join(entitlement.ErrFailedToLoadPlans, err)
		}

		existing, ok := plans[p.ID]
		if !ok {
			p.Limits = make(map[entitlement.Feature]entitlement.Value)
			existing = p
		}
		if feature != nil && raw != nil {
			v, err := entitlement.ParseValue(*raw)
			if err != nil {
				return nil, errors.Join(entitlement.ErrFailedToLoadPlans,
					fmt.Errorf("plan %s feature %s", p.ID, *feature), err)
			}
			existing.Limits[entitlement.Feature(*feature)] = v
		}
		plans[p.ID] = existing
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(entitlement.ErrFailedToLoadPlans, err)
	}

	return plans, nil
}

const upsertFeatureQuery = `
INSERT INTO features (key, name, description, type, period, scope, category, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (key) DO UPDATE
SET name = EXCLUDED.name,
    description = EXCLUDED.description,
    type = EXCLUDED.type,
    period = EXCLUDED.period,
    scope = EXCLUDED.scope,
    category = EXCLUDED.category,
    active = EXCLUDED.active,
    updated_at = NOW()`

const upsertPlanQuery = `
INSERT INTO plans (id, name, description, public)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
    description = EXCLUDED.description,
    public = EXCLUDED.public,
    updated_at = NOW()`

// ApplySeed writes the seed's features and plans in one transaction.
// Plans are replaced wholesale: limits missing from the seed are removed.
// Features and plans absent from the seed are left untouched.
func ApplySeed(ctx context.Context, db DB, seed entitlement.Seed) error {
	err := pg.InTx(ctx, db, func(ctx context.Context) error {
		q := pg.Querier(ctx, db)

		batch := &pgx.Batch{}
		for _, d := range seed.Features {
			batch.Queue(upsertFeatureQuery, string(d.Key), d.Name, d.Description,
				string(d.Type), string(d.Period), string(d.Scope), d.Category, d.Active)
		}
		for _, p := range seed.Plans {
			batch.Queue(upsertPlanQuery, p.ID, p.Name, p.Description, p.Public)
			batch.Queue(`DELETE FROM plan_limits WHERE plan_id = $1`, p.ID)
			for f, v := range p.Limits {
				if v.IsAbsent() {
					continue
				}
				batch.Queue(`INSERT INTO plan_limits (plan_id, feature_key, value) VALUES ($1, $2, $3)`,
					p.ID, string(f), v.String())
			}
		}

		return q.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return errors.Join(entitlement.ErrStorage, err)
	}
	return nil
}

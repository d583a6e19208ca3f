package entitlement

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/entitlements/pkg/cache"
)

// PlanRegistry resolves plan IDs to plans, keeping loaded plans in a TTL cache.
// Concurrent misses share a single source reload.
type PlanRegistry struct {
	src     PlanSource
	catalog *Catalog
	plans   *cache.LRUCache[string, Plan]
	group   singleflight.Group
}

// RegistryOption configures a PlanRegistry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

// WithPlanCacheTTL sets how long loaded plans are trusted. Zero caches forever.
func WithPlanCacheTTL(d time.Duration) RegistryOption {
	return func(o *registryOptions) {
		if d >= 0 {
			o.ttl = d
		}
	}
}

// WithPlanCacheSize caps the number of cached plans.
func WithPlanCacheSize(n int) RegistryOption {
	return func(o *registryOptions) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithRegistryClock overrides the cache time source.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(o *registryOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewPlanRegistry creates a registry over the given source.
func NewPlanRegistry(src PlanSource, catalog *Catalog, opts ...RegistryOption) *PlanRegistry {
	o := registryOptions{ttl: 5 * time.Minute, capacity: 256, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	return &PlanRegistry{
		src:     src,
		catalog: catalog,
		plans:   cache.NewLRUCache[string, Plan](o.capacity, cache.WithTTL(o.ttl), cache.WithClock(o.now)),
	}
}

// Plan returns a copy of the plan with the given ID.
func (r *PlanRegistry) Plan(ctx context.Context, planID string) (*Plan, error) {
	if plan, ok := r.plans.Get(planID); ok {
		p := plan.Clone()
		return &p, nil
	}

	if _, err, _ := r.group.Do("load", func() (any, error) {
		return nil, r.reload(ctx)
	}); err != nil {
		return nil, err
	}

	plan, ok := r.plans.Get(planID)
	if !ok {
		return nil, ErrPlanNotFound
	}
	p := plan.Clone()
	return &p, nil
}

// Invalidate drops all cached plans so the next lookup reloads the source.
func (r *PlanRegistry) Invalidate() {
	r.plans.Clear()
}

func (r *PlanRegistry) reload(ctx context.Context) error {
	plans, err := r.src.Load(ctx)
	if err != nil {
		return errors.Join(ErrFailedToLoadPlans, err)
	}
	if err := ValidatePlans(plans, r.catalog); err != nil {
		return err
	}
	for id, plan := range plans {
		r.plans.Put(id, plan)
	}
	return nil
}

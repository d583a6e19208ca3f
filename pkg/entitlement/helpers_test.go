package entitlement_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(now time.Time) *testClock {
	return &testClock{now: now}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// planBuilder assembles plans for fixtures.
type planBuilder struct {
	plan entitlement.Plan
}

func newPlan(id string) *planBuilder {
	return &planBuilder{plan: entitlement.Plan{
		ID:     id,
		Name:   id,
		Limits: map[entitlement.Feature]entitlement.Value{},
	}}
}

func (b *planBuilder) limit(f entitlement.Feature, n int64) *planBuilder {
	b.plan.Limits[f] = entitlement.Limit(n)
	return b
}

func (b *planBuilder) flag(f entitlement.Feature, on bool) *planBuilder {
	b.plan.Limits[f] = entitlement.Bool(on)
	return b
}

func (b *planBuilder) build() *entitlement.Plan {
	p := b.plan.Clone()
	return &p
}

func freePlan() *entitlement.Plan {
	return newPlan("free").
		limit(entitlement.FeatureWorkspaces, 1).
		limit(entitlement.FeatureTeamMembers, 5).
		limit(entitlement.FeatureConnectionsPerWorkspace, 10).
		limit(entitlement.FeatureAPIRateLimit, 60).
		limit(entitlement.FeatureAPICalls, 1000).
		limit(entitlement.FeatureExports, 3).
		build()
}

func proPlan() *entitlement.Plan {
	return newPlan("pro").
		limit(entitlement.FeatureWorkspaces, 10).
		limit(entitlement.FeatureTeamMembers, entitlement.Unlimited).
		limit(entitlement.FeatureConnectionsPerWorkspace, 50).
		limit(entitlement.FeatureAPIRateLimit, entitlement.Unlimited).
		limit(entitlement.FeatureAPICalls, 100000).
		limit(entitlement.FeatureExports, 0).
		flag(entitlement.FeaturePrioritySupport, true).
		flag(entitlement.FeatureCustomBranding, true).
		flag(entitlement.FeatureSSO, false).
		build()
}

type fixture struct {
	svc   entitlement.Service
	store *entitlement.MemoryStore
	clock *testClock
}

func newFixture(t *testing.T, opts ...entitlement.Option) *fixture {
	t.Helper()

	clock := newTestClock(time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC))
	store := entitlement.NewMemoryStore(entitlement.WithMemoryClock(clock.Now))

	opts = append([]entitlement.Option{entitlement.WithClock(clock.Now)}, opts...)
	svc, err := entitlement.NewService(entitlement.DefaultCatalog(), store, store, store, opts...)
	require.NoError(t, err)

	return &fixture{svc: svc, store: store, clock: clock}
}

func newOrg(plan *entitlement.Plan) entitlement.Organization {
	return entitlement.Organization{ID: uuid.New(), Plan: plan}
}

package redisstore_test

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/entitlement/redisstore"
)

var now = time.Date(2025, time.April, 15, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, opts ...redisstore.Option) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	mr.SetTime(now)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	opts = append([]redisstore.Option{redisstore.WithClock(func() time.Time { return now })}, opts...)
	return redisstore.New(client, opts...), mr
}

func key(org uuid.UUID, ws uuid.UUID, f entitlement.Feature, p entitlement.Period) entitlement.UsageKey {
	k := entitlement.UsageKey{
		OrganizationID: org,
		Feature:        f,
		Window:         entitlement.CurrentWindow(p, now),
	}
	if ws != uuid.Nil {
		k.WorkspaceID = uuid.NullUUID{UUID: ws, Valid: true}
	}
	return k
}

func TestStore_IncrementWithin(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := setup(t)
	org := uuid.New()
	k := key(org, uuid.Nil, entitlement.FeatureAPICalls, entitlement.PeriodMonthly)

	n, ok, err := store.IncrementWithin(ctx, k, 7, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)

	n, ok, err = store.IncrementWithin(ctx, k, 4, 10)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(7), n)

	n, ok, err = store.IncrementWithin(ctx, k, 3, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(10), n)

	n, ok, err = store.IncrementWithin(ctx, k, 1000, entitlement.Unlimited)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1010), n)
}

func TestStore_WorkspaceAggregation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := setup(t)
	org, ws1, ws2 := uuid.New(), uuid.New(), uuid.New()
	f, p := entitlement.FeatureConnectionsPerWorkspace, entitlement.PeriodLifetime

	_, err := store.Increment(ctx, key(org, ws1, f, p), 3)
	require.NoError(t, err)
	_, err = store.Increment(ctx, key(org, ws2, f, p), 4)
	require.NoError(t, err)
	_, err = store.Increment(ctx, key(org, uuid.Nil, f, p), 1)
	require.NoError(t, err)

	n, err := store.Usage(ctx, key(org, ws1, f, p))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = store.Usage(ctx, key(org, uuid.Nil, f, p))
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)

	// The aggregate limit applies to organization-level writes.
	_, ok, err := store.IncrementWithin(ctx, key(org, uuid.Nil, f, p), 3, 10)
	require.NoError(t, err)
	assert.False(t, ok)

	// Workspace writes are checked against the workspace counter.
	n, ok, err = store.IncrementWithin(ctx, key(org, ws1, f, p), 3, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(6), n)

	n, err = store.Usage(ctx, key(org, uuid.Nil, f, p))
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
}

func TestStore_Decrement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := setup(t)
	org, ws := uuid.New(), uuid.New()
	f, p := entitlement.FeatureConnectionsPerWorkspace, entitlement.PeriodLifetime

	_, err := store.Increment(ctx, key(org, ws, f, p), 2)
	require.NoError(t, err)
	_, err = store.Increment(ctx, key(org, uuid.Nil, f, p), 5)
	require.NoError(t, err)

	n, err := store.Decrement(ctx, key(org, ws, f, p), 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = store.Usage(ctx, key(org, uuid.Nil, f, p))
	require.NoError(t, err)
	assert.Equal(t, int64(5), n, "decrement only touches the key's own counter")

	n, err = store.Decrement(ctx, key(org, uuid.Nil, f, p), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = store.Decrement(ctx, key(uuid.New(), uuid.Nil, f, p), 2)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStore_InitWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mr := setup(t, redisstore.WithKeyPrefix("test"), redisstore.WithRetention(time.Hour))
	org, ws := uuid.New(), uuid.New()
	k := key(org, ws, entitlement.FeatureConnectionsPerWorkspace, entitlement.PeriodMonthly)

	rec, err := store.InitWindow(ctx, k)
	require.NoError(t, err)
	assert.Zero(t, rec.CurrentUsage)
	assert.Equal(t, k.WorkspaceID, rec.WorkspaceID)
	assert.Equal(t, k.Window.StartsAt, rec.PeriodStartsAt)
	require.NotNil(t, rec.PeriodEndsAt)
	assert.Equal(t, time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC), *rec.PeriodEndsAt)
	assert.Equal(t, now, rec.CreatedAt)

	_, err = store.Increment(ctx, k, 2)
	require.NoError(t, err)

	again, err := store.InitWindow(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
	assert.Equal(t, int64(2), again.CurrentUsage)

	keys := mr.Keys()
	require.Len(t, keys, 2)
	for _, name := range keys {
		if mr.Type(name) == "hash" {
			assert.Positive(t, mr.TTL(name))
		}
	}
}

func TestStore_LifetimeWindowsDoNotExpire(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mr := setup(t)
	k := key(uuid.New(), uuid.Nil, entitlement.FeatureWorkspaces, entitlement.PeriodLifetime)

	_, err := store.Increment(ctx, k, 1)
	require.NoError(t, err)

	for _, name := range mr.Keys() {
		assert.Zero(t, mr.TTL(name))
	}
}

func TestStore_History(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := setup(t)
	org, ws := uuid.New(), uuid.New()
	f := entitlement.FeatureAPICalls

	march := entitlement.UsageKey{
		OrganizationID: org,
		Feature:        f,
		Window:         entitlement.CurrentWindow(entitlement.PeriodMonthly, now.AddDate(0, -1, 0)),
	}
	_, err := store.Increment(ctx, march, 700)
	require.NoError(t, err)

	_, err = store.Increment(ctx, key(org, uuid.Nil, f, entitlement.PeriodMonthly), 5)
	require.NoError(t, err)
	_, err = store.Increment(ctx, key(org, ws, f, entitlement.PeriodMonthly), 2)
	require.NoError(t, err)

	history, err := store.History(ctx, org, f)
	require.NoError(t, err)
	require.Len(t, history, 3)

	assert.Equal(t, time.April, history[0].PeriodStartsAt.Month())
	assert.False(t, history[0].WorkspaceID.Valid)
	assert.Equal(t, int64(5), history[0].CurrentUsage)
	assert.Equal(t, ws, history[1].WorkspaceID.UUID)
	assert.Equal(t, int64(2), history[1].CurrentUsage)
	assert.Equal(t, time.March, history[2].PeriodStartsAt.Month())
	assert.Equal(t, int64(700), history[2].CurrentUsage)

	empty, err := store.History(ctx, uuid.New(), f)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_HistoryIndexDropsExpiredWindows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := time.Date(2025, time.March, 20, 12, 0, 0, 0, time.UTC)

	mr := miniredis.RunT(t)
	mr.SetTime(clock)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisstore.New(client,
		redisstore.WithClock(func() time.Time { return clock }),
		redisstore.WithRetention(24*time.Hour),
	)
	org := uuid.New()
	f := entitlement.FeatureAPICalls
	index := "usage:{" + org.String() + ":" + string(f) + "}:windows"

	march := entitlement.UsageKey{OrganizationID: org, Feature: f, Window: entitlement.CurrentWindow(entitlement.PeriodMonthly, clock)}
	_, err := store.Increment(ctx, march, 3)
	require.NoError(t, err)

	members, err := mr.ZMembers(index)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	clock = time.Date(2025, time.April, 15, 12, 0, 0, 0, time.UTC)
	mr.SetTime(clock)

	april := entitlement.UsageKey{OrganizationID: org, Feature: f, Window: entitlement.CurrentWindow(entitlement.PeriodMonthly, clock)}
	_, err = store.InitWindow(ctx, april)
	require.NoError(t, err)

	members, err = mr.ZMembers(index)
	require.NoError(t, err)
	assert.Equal(t, []string{"monthly:" + strconv.FormatInt(april.Window.StartsAt.Unix(), 10)}, members)

	history, err := store.History(ctx, org, f)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, time.April, history[0].PeriodStartsAt.Month())
}

func TestStore_WithService(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := setup(t)
	memory := entitlement.NewMemoryStore()

	svc, err := entitlement.NewService(entitlement.DefaultCatalog(), memory, memory, store,
		entitlement.WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	org := entitlement.Organization{
		ID: uuid.New(),
		Plan: &entitlement.Plan{
			ID:     "team",
			Limits: map[entitlement.Feature]entitlement.Value{entitlement.FeatureTeamMembers: entitlement.Limit(5)},
		},
	}

	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
	)
	for range 25 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.ConsumeFeature(ctx, org, entitlement.FeatureTeamMembers, 1)
			assert.NoError(t, err)
			if ok {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), accepted.Load())

	remaining, err := svc.GetRemainingUsage(ctx, org, entitlement.FeatureTeamMembers)
	require.NoError(t, err)
	assert.Zero(t, remaining)
}

func TestStore_Unavailable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mr := setup(t)
	mr.Close()

	_, _, err := store.IncrementWithin(ctx, key(uuid.New(), uuid.Nil, entitlement.FeatureExports, entitlement.PeriodMonthly), 1, 3)
	assert.Error(t, err)
}

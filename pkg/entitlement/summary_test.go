package entitlement_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
)

func TestService_GetUsageSummary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, entitlement.WithSummaryConcurrency(2))
	org := newOrg(freePlan())

	ok, err := f.svc.ConsumeFeature(ctx, org, entitlement.FeatureTeamMembers, 3)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.svc.ConsumeInWorkspace(ctx, org, uuid.New(), entitlement.FeatureConnectionsPerWorkspace, 4)
	require.NoError(t, err)
	require.True(t, ok)

	summary, err := f.svc.GetUsageSummary(ctx, org)
	require.NoError(t, err)
	assert.Len(t, summary, len(entitlement.KnownFeatures()))

	members := summary[entitlement.FeatureTeamMembers]
	assert.Equal(t, int64(3), members.Current)
	assert.Equal(t, entitlement.Limit(5), members.Limit)
	assert.Equal(t, int64(2), members.Remaining)
	assert.InDelta(t, 60.0, members.Percentage, 0.0001)
	assert.True(t, members.HasFeature)

	conns := summary[entitlement.FeatureConnectionsPerWorkspace]
	assert.Equal(t, int64(4), conns.Current)

	support := summary[entitlement.FeaturePrioritySupport]
	assert.False(t, support.HasFeature)
	assert.Equal(t, entitlement.TypeBoolean, support.Type)
	assert.Zero(t, support.Current)

	sso := summary[entitlement.FeatureSSO]
	assert.False(t, sso.HasFeature)
	assert.True(t, sso.Limit.IsAbsent())

	// read only
	usage, err := f.svc.GetCurrentUsage(ctx, org, entitlement.FeatureTeamMembers)
	require.NoError(t, err)
	assert.Equal(t, int64(3), usage)
}

func TestService_GetUsageSummary_Unlimited(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	org := newOrg(proPlan())

	summary, err := f.svc.GetUsageSummary(ctx, org)
	require.NoError(t, err)

	members := summary[entitlement.FeatureTeamMembers]
	assert.Equal(t, entitlement.Unlimited, members.Remaining)
	assert.Zero(t, members.Percentage)
	assert.True(t, members.HasFeature)

	data, err := json.Marshal(members)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"feature": "team_members",
		"name": "Team members",
		"type": "limit",
		"period": "lifetime",
		"current": 0,
		"limit": -1,
		"remaining": -1,
		"percentage": 0,
		"has_feature": true
	}`, string(data))
}

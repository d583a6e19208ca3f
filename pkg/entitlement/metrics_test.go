package entitlement_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
)

func TestService_Metrics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := prometheus.NewPedanticRegistry()
	f := newFixture(t, entitlement.WithMetrics(reg))
	org := newOrg(freePlan())

	for range 2 {
		_, err := f.svc.ConsumeFeature(ctx, org, entitlement.FeatureWorkspaces, 1)
		require.NoError(t, err)
	}
	require.NoError(t, f.svc.UnconsumeFeature(ctx, org, entitlement.FeatureWorkspaces, 1))

	count, err := testutil.GatherAndCount(reg, "entitlements_consume_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per result")

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "," + lp.GetName() + "=" + lp.GetValue()
			}
			if c := m.GetCounter(); c != nil {
				values[key] = c.GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, values["entitlements_consume_total,feature=workspaces,result=accepted"])
	assert.Equal(t, 1.0, values["entitlements_consume_total,feature=workspaces,result=rejected"])
	assert.Equal(t, 1.0, values["entitlements_unconsume_total,feature=workspaces"])
}

func TestService_MetricsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	store := entitlement.NewMemoryStore()

	_, err := entitlement.NewService(entitlement.DefaultCatalog(), store, store, store, entitlement.WithMetrics(reg))
	require.NoError(t, err)

	_, err = entitlement.NewService(entitlement.DefaultCatalog(), store, store, store, entitlement.WithMetrics(reg))
	assert.ErrorIs(t, err, entitlement.ErrInvalidConfiguration)
}

package entitlement_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
)

func TestNewCatalog(t *testing.T) {
	t.Parallel()

	valid := entitlement.Definition{
		Key:    "storage_gb",
		Name:   "Storage",
		Type:   entitlement.TypeLimit,
		Period: entitlement.PeriodLifetime,
		Scope:  entitlement.ScopeOrganization,
		Active: true,
	}

	t.Run("valid", func(t *testing.T) {
		t.Parallel()

		c, err := entitlement.NewCatalog(valid)
		require.NoError(t, err)
		def, ok := c.Definition("storage_gb")
		assert.True(t, ok)
		assert.Equal(t, valid, def)
	})

	t.Run("duplicate key", func(t *testing.T) {
		t.Parallel()

		_, err := entitlement.NewCatalog(valid, valid)
		assert.ErrorIs(t, err, entitlement.ErrInvalidFeatureDefinition)
	})

	t.Run("invalid fields", func(t *testing.T) {
		t.Parallel()

		for _, mutate := range []func(*entitlement.Definition){
			func(d *entitlement.Definition) { d.Key = "" },
			func(d *entitlement.Definition) { d.Type = "counter" },
			func(d *entitlement.Definition) { d.Period = "weekly" },
			func(d *entitlement.Definition) { d.Scope = "user" },
		} {
			def := valid
			mutate(&def)
			_, err := entitlement.NewCatalog(def)
			assert.ErrorIs(t, err, entitlement.ErrInvalidFeatureDefinition)
		}
	})

	t.Run("must panics", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() { entitlement.MustNewCatalog(valid, valid) })
	})
}

func TestCatalog_Lookup(t *testing.T) {
	t.Parallel()

	inactive := entitlement.Definition{
		Key:    "legacy_reports",
		Type:   entitlement.TypeBoolean,
		Period: entitlement.PeriodLifetime,
		Scope:  entitlement.ScopeOrganization,
	}
	c, err := entitlement.NewCatalog(append(entitlement.DefaultDefinitions(), inactive)...)
	require.NoError(t, err)

	_, ok := c.Definition("legacy_reports")
	assert.False(t, ok)
	assert.True(t, c.Has("legacy_reports"))

	_, ok = c.Definition("unknown")
	assert.False(t, ok)

	assert.Len(t, c.All(), len(entitlement.DefaultDefinitions())+1)
	assert.Len(t, c.Active(), len(entitlement.DefaultDefinitions()))
	assert.Equal(t, entitlement.FeatureWorkspaces, c.Active()[0].Key)

	require.NoError(t, c.Validate(entitlement.KnownFeatures()...))
	assert.ErrorIs(t, c.Validate("unknown"), entitlement.ErrUnknownFeature)
}

func TestDefaultCatalog(t *testing.T) {
	t.Parallel()

	c := entitlement.DefaultCatalog()

	def, ok := c.Definition(entitlement.FeatureConnectionsPerWorkspace)
	require.True(t, ok)
	assert.True(t, def.IsWorkspaceScoped())

	def, ok = c.Definition(entitlement.FeatureAPICalls)
	require.True(t, ok)
	assert.Equal(t, entitlement.PeriodMonthly, def.Period)

	def, ok = c.Definition(entitlement.FeatureExports)
	require.True(t, ok)
	assert.Equal(t, entitlement.PeriodYearly, def.Period)

	def, ok = c.Definition(entitlement.FeaturePrioritySupport)
	require.True(t, ok)
	assert.True(t, def.IsBoolean())
}

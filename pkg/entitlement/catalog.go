package entitlement

import (
	"errors"
	"fmt"
	"slices"
)

// Catalog is the immutable registry of feature definitions.
// Safe for concurrent use: it is never modified after construction.
type Catalog struct {
	defs  map[Feature]Definition
	order []Feature
}

// NewCatalog builds a catalog from the given definitions.
// Definitions must have unique keys and valid type, period and scope.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{
		defs:  make(map[Feature]Definition, len(defs)),
		order: make([]Feature, 0, len(defs)),
	}

	for _, def := range defs {
		if err := def.validate(); err != nil {
			return nil, errors.Join(err, fmt.Errorf("feature %q", def.Key))
		}
		if _, exists := c.defs[def.Key]; exists {
			return nil, errors.Join(ErrInvalidFeatureDefinition,
				fmt.Errorf("duplicate feature %q", def.Key))
		}
		c.defs[def.Key] = def
		c.order = append(c.order, def.Key)
	}

	return c, nil
}

// MustNewCatalog is like NewCatalog but panics on invalid definitions.
func MustNewCatalog(defs ...Definition) *Catalog {
	c, err := NewCatalog(defs...)
	if err != nil {
		panic(err)
	}
	return c
}

// Definition returns the active definition for the feature.
// Unknown and inactive features report false.
func (c *Catalog) Definition(f Feature) (Definition, bool) {
	def, ok := c.defs[f]
	if !ok || !def.Active {
		return Definition{}, false
	}
	return def, true
}

// Has reports whether the feature is registered, active or not.
func (c *Catalog) Has(f Feature) bool {
	_, ok := c.defs[f]
	return ok
}

// Active returns active definitions in registration order.
func (c *Catalog) Active() []Definition {
	out := make([]Definition, 0, len(c.order))
	for _, key := range c.order {
		if def := c.defs[key]; def.Active {
			out = append(out, def)
		}
	}
	return out
}

// All returns every definition in registration order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.defs[key])
	}
	return out
}

// Validate checks that every given feature is registered.
// Used at startup so a typo in a feature constant fails fast.
func (c *Catalog) Validate(features ...Feature) error {
	var missing []Feature
	for _, f := range features {
		if !c.Has(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return errors.Join(ErrUnknownFeature, fmt.Errorf("not in catalog: %v", missing))
	}
	return nil
}

// DefaultDefinitions returns the built-in feature catalog.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			Key:         FeatureWorkspaces,
			Name:        "Workspaces",
			Description: "Number of workspaces an organization can create",
			Type:        TypeLimit,
			Period:      PeriodLifetime,
			Scope:       ScopeOrganization,
			Category:    "resources",
			Active:      true,
		},
		{
			Key:         FeatureTeamMembers,
			Name:        "Team members",
			Description: "Number of members across the organization",
			Type:        TypeLimit,
			Period:      PeriodLifetime,
			Scope:       ScopeOrganization,
			Category:    "resources",
			Active:      true,
		},
		{
			Key:         FeatureConnectionsPerWorkspace,
			Name:        "Connections per workspace",
			Description: "Number of connections each workspace can hold",
			Type:        TypeLimit,
			Period:      PeriodLifetime,
			Scope:       ScopeWorkspace,
			Category:    "resources",
			Active:      true,
		},
		{
			Key:         FeatureAPIRateLimit,
			Name:        "API rate limit",
			Description: "Requests per minute allowed for the organization",
			Type:        TypeLimit,
			Period:      PeriodLifetime,
			Scope:       ScopeOrganization,
			Category:    "api",
			Active:      true,
		},
		{
			Key:         FeatureAPICalls,
			Name:        "API calls",
			Description: "API calls per calendar month",
			Type:        TypeLimit,
			Period:      PeriodMonthly,
			Scope:       ScopeOrganization,
			Category:    "api",
			Active:      true,
		},
		{
			Key:         FeatureExports,
			Name:        "Exports",
			Description: "Data exports per calendar year",
			Type:        TypeLimit,
			Period:      PeriodYearly,
			Scope:       ScopeOrganization,
			Category:    "data",
			Active:      true,
		},
		{
			Key:      FeaturePrioritySupport,
			Name:     "Priority support",
			Type:     TypeBoolean,
			Period:   PeriodLifetime,
			Scope:    ScopeOrganization,
			Category: "support",
			Active:   true,
		},
		{
			Key:      FeatureCustomBranding,
			Name:     "Custom branding",
			Type:     TypeBoolean,
			Period:   PeriodLifetime,
			Scope:    ScopeOrganization,
			Category: "branding",
			Active:   true,
		},
		{
			Key:      FeatureSSO,
			Name:     "Single sign-on",
			Type:     TypeBoolean,
			Period:   PeriodLifetime,
			Scope:    ScopeOrganization,
			Category: "security",
			Active:   true,
		},
	}
}

// DefaultCatalog returns a catalog built from DefaultDefinitions.
func DefaultCatalog() *Catalog {
	return MustNewCatalog(DefaultDefinitions()...)
}

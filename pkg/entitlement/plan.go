package entitlement

import (
	"context"
	"errors"
	"fmt"
	"maps"
)

// Plan is a named bundle of feature grants.
type Plan struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description"`
	Limits      map[Feature]Value `json:"limits" yaml:"limits"`
	Public      bool              `json:"public" yaml:"public"` // available for self-registration
}

// Limit returns the plan's configured value for the feature.
// A nil plan grants nothing.
func (p *Plan) Limit(f Feature) (Value, bool) {
	if p == nil {
		return Absent(), false
	}
	v, ok := p.Limits[f]
	if !ok || v.IsAbsent() {
		return Absent(), false
	}
	return v, true
}

// Clone returns a deep copy of the plan.
func (p Plan) Clone() Plan {
	p.Limits = maps.Clone(p.Limits)
	return p
}

// PlanSource defines how plans are loaded.
type PlanSource interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// ValidatePlans checks that every plan references only catalog features.
func ValidatePlans(plans map[string]Plan, catalog *Catalog) error {
	for id, plan := range plans {
		if id == "" || plan.ID != id {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan key %q does not match plan ID %q", id, plan.ID))
		}
		for f := range plan.Limits {
			if !catalog.Has(f) {
				return errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("plan %s references unknown feature %q", id, f))
			}
		}
	}
	return nil
}

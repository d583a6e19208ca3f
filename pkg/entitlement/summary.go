package entitlement

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// FeatureUsage is one row of a usage summary.
type FeatureUsage struct {
	Feature    Feature `json:"feature"`
	Name       string  `json:"name"`
	Type       Type    `json:"type"`
	Period     Period  `json:"period"`
	Current    int64   `json:"current"`
	Limit      Value   `json:"limit"`
	Remaining  int64   `json:"remaining"`
	Percentage float64 `json:"percentage"`
	HasFeature bool    `json:"has_feature"`
}

// Summary maps every active catalog feature to its usage row.
type Summary map[Feature]FeatureUsage

// GetUsageSummary evaluates all active features of the catalog for the organization.
func (s *service) GetUsageSummary(ctx context.Context, org Organization) (Summary, error) {
	defer s.metrics.observe("summary")()

	defs := s.catalog.Active()

	var mu sync.Mutex
	summary := make(Summary, len(defs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.summaryConcurrency)
	for _, def := range defs {
		g.Go(func() error {
			row, err := s.featureUsage(ctx, org, def)
			if err != nil {
				return err
			}
			mu.Lock()
			summary[def.Key] = row
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return summary, nil
}

func (s *service) featureUsage(ctx context.Context, org Organization, def Definition) (FeatureUsage, error) {
	_, v, err := s.resolve(ctx, org, uuid.NullUUID{}, def.Key)
	if err != nil {
		return FeatureUsage{}, err
	}

	row := FeatureUsage{
		Feature:    def.Key,
		Name:       def.Name,
		Type:       def.Type,
		Period:     def.Period,
		Limit:      v,
		HasFeature: granted(def, v),
	}
	if def.IsBoolean() {
		return row, nil
	}

	current, err := s.tracker.OrganizationUsage(ctx, def, org.ID)
	if err != nil {
		return FeatureUsage{}, err
	}
	row.Current = current

	if limit, ok := v.Int(); ok {
		if limit == Unlimited {
			row.Remaining = Unlimited
		} else {
			row.Remaining = max(0, limit-current)
			row.Percentage = usagePercentage(current, limit)
		}
	}
	return row, nil
}

package entitlement

import (
	"context"
	"sync"
)

// inMemSource implements PlanSource over an in-memory plan map.
type inMemSource struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewInMemSource returns an in-memory PlanSource with a deep copy of the given plans.
func NewInMemSource(plans map[string]Plan) PlanSource {
	plansCopy := make(map[string]Plan, len(plans))
	for id, plan := range plans {
		plansCopy[id] = plan.Clone()
	}
	return &inMemSource{plans: plansCopy}
}

// Load returns a copy of all plans.
func (s *inMemSource) Load(ctx context.Context) (map[string]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plansCopy := make(map[string]Plan, len(s.plans))
	for id, plan := range s.plans {
		plansCopy[id] = plan.Clone()
	}
	return plansCopy, nil
}

package entitlement

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type overrideKey struct {
	org     uuid.UUID
	feature Feature
}

type allocationKey struct {
	workspace uuid.UUID
	feature   Feature
}

type windowKey struct {
	org     uuid.UUID
	feature Feature
	period  Period
	start   int64
}

// MemoryStore implements OverrideStore, AllocationStore, UsageStore and
// UsageHistoryStore in memory. A single mutex serializes every operation,
// which makes IncrementWithin trivially atomic.
// Useful for tests and single-process deployments.
type MemoryStore struct {
	mu          sync.Mutex
	now         func() time.Time
	overrides   map[overrideKey]Override
	allocations map[allocationKey]Allocation
	// Counters per window; uuid.Nil holds the organization-level row.
	usage map[windowKey]map[uuid.UUID]*UsageRecord
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMemoryClock sets the time source for record timestamps.
func WithMemoryClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		now:         time.Now,
		overrides:   make(map[overrideKey]Override),
		allocations: make(map[allocationKey]Allocation),
		usage:       make(map[windowKey]map[uuid.UUID]*UsageRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListOverrides implements OverrideStore.
func (s *MemoryStore) ListOverrides(ctx context.Context, orgID uuid.UUID, f Feature) ([]Override, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.overrides[overrideKey{org: orgID, feature: f}]
	if !ok {
		return nil, nil
	}
	return []Override{o}, nil
}

// SaveOverride implements OverrideStore.
func (s *MemoryStore) SaveOverride(ctx context.Context, o Override) error {
	if o.Value.IsAbsent() {
		return ErrInvalidValue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	key := overrideKey{org: o.OrganizationID, feature: o.Feature}
	if existing, ok := s.overrides[key]; ok {
		o.ID = existing.ID
		o.CreatedAt = existing.CreatedAt
	} else {
		if o.ID == uuid.Nil {
			o.ID = uuid.New()
		}
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	s.overrides[key] = o
	return nil
}

// DeleteOverride implements OverrideStore.
func (s *MemoryStore) DeleteOverride(ctx context.Context, orgID uuid.UUID, f Feature) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := overrideKey{org: orgID, feature: f}
	if _, ok := s.overrides[key]; !ok {
		return ErrOverrideNotFound
	}
	delete(s.overrides, key)
	return nil
}

// GetAllocation implements AllocationStore.
func (s *MemoryStore) GetAllocation(ctx context.Context, workspaceID uuid.UUID, f Feature) (Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.allocations[allocationKey{workspace: workspaceID, feature: f}]
	if !ok {
		return Allocation{}, ErrAllocationNotFound
	}
	return a, nil
}

// SaveAllocation implements AllocationStore.
func (s *MemoryStore) SaveAllocation(ctx context.Context, a Allocation) error {
	if a.Allocated < Unlimited {
		return ErrInvalidValue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.allocations[allocationKey{workspace: a.WorkspaceID, feature: a.Feature}] = a
	return nil
}

// DeleteAllocation implements AllocationStore.
func (s *MemoryStore) DeleteAllocation(ctx context.Context, workspaceID uuid.UUID, f Feature) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := allocationKey{workspace: workspaceID, feature: f}
	if _, ok := s.allocations[key]; !ok {
		return ErrAllocationNotFound
	}
	delete(s.allocations, key)
	return nil
}

// Usage implements UsageStore.
func (s *MemoryStore) Usage(ctx context.Context, key UsageKey) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usageLocked(key), nil
}

// InitWindow implements UsageStore.
func (s *MemoryStore) InitWindow(ctx context.Context, key UsageKey) (UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rowLocked(key), nil
}

// Increment implements UsageStore.
func (s *MemoryStore) Increment(ctx context.Context, key UsageKey, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.addLocked(key, amount)
	return s.usageLocked(key), nil
}

// IncrementWithin implements UsageStore.
func (s *MemoryStore) IncrementWithin(ctx context.Context, key UsageKey, amount, limit int64) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.usageLocked(key)
	if !Fits(current, amount, limit) {
		return current, false, nil
	}
	s.addLocked(key, amount)
	return current + amount, true, nil
}

// Decrement implements UsageStore.
func (s *MemoryStore) Decrement(ctx context.Context, key UsageKey, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row := s.findLocked(key); row != nil {
		row.CurrentUsage = max(0, row.CurrentUsage-amount)
		row.UpdatedAt = s.now().UTC()
	}
	return s.usageLocked(key), nil
}

// History implements UsageHistoryStore.
func (s *MemoryStore) History(ctx context.Context, orgID uuid.UUID, f Feature) ([]UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []UsageRecord
	for wk, rows := range s.usage {
		if wk.org != orgID || wk.feature != f {
			continue
		}
		for _, row := range rows {
			out = append(out, *row)
		}
	}

	slices.SortFunc(out, func(a, b UsageRecord) int {
		if c := b.PeriodStartsAt.Compare(a.PeriodStartsAt); c != 0 {
			return c
		}
		return cmp.Compare(a.WorkspaceID.UUID.String(), b.WorkspaceID.UUID.String())
	})
	return out, nil
}

func memWindowKey(key UsageKey) windowKey {
	return windowKey{
		org:     key.OrganizationID,
		feature: key.Feature,
		period:  key.Window.Period,
		start:   key.Window.StartsAt.Unix(),
	}
}

// Must be called with lock held.
func (s *MemoryStore) usageLocked(key UsageKey) int64 {
	rows := s.usage[memWindowKey(key)]
	if key.WorkspaceID.Valid {
		if row, ok := rows[key.WorkspaceID.UUID]; ok {
			return row.CurrentUsage
		}
		return 0
	}

	var total int64
	for _, row := range rows {
		total += row.CurrentUsage
	}
	return total
}

// Must be called with lock held.
func (s *MemoryStore) findLocked(key UsageKey) *UsageRecord {
	rows := s.usage[memWindowKey(key)]
	if rows == nil {
		return nil
	}
	return rows[rowID(key)]
}

// Must be called with lock held.
func (s *MemoryStore) rowLocked(key UsageKey) *UsageRecord {
	wk := memWindowKey(key)
	rows, ok := s.usage[wk]
	if !ok {
		rows = make(map[uuid.UUID]*UsageRecord)
		s.usage[wk] = rows
	}

	id := rowID(key)
	if row, ok := rows[id]; ok {
		return row
	}

	now := s.now().UTC()
	row := &UsageRecord{
		ID:             uuid.New(),
		OrganizationID: key.OrganizationID,
		WorkspaceID:    key.WorkspaceID,
		Feature:        key.Feature,
		Period:         key.Window.Period,
		PeriodStartsAt: key.Window.StartsAt,
		PeriodEndsAt:   key.Window.EndsAtPtr(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	rows[id] = row
	return row
}

// Must be called with lock held.
func (s *MemoryStore) addLocked(key UsageKey, amount int64) {
	row := s.rowLocked(key)
	row.CurrentUsage += amount
	row.UpdatedAt = s.now().UTC()
}

func rowID(key UsageKey) uuid.UUID {
	if key.WorkspaceID.Valid {
		return key.WorkspaceID.UUID
	}
	return uuid.Nil
}

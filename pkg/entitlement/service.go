package entitlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/entitlements/pkg/logger"
)

// Organization is the tenant whose entitlements are evaluated.
// Plan is the organization's current plan; nil means no active plan.
type Organization struct {
	ID   uuid.UUID
	Plan *Plan
}

// Service answers entitlement questions and maintains usage counters.
// Unknown or inactive features are reported as absent, never as errors.
type Service interface {
	// HasFeature reports whether the feature is granted. For limit features
	// any granted value counts, including 0. Storage errors are logged and
	// reported as false.
	HasFeature(ctx context.Context, org Organization, f Feature) bool

	// GetLimit returns the organization-level value of the feature.
	GetLimit(ctx context.Context, org Organization, f Feature) (Value, error)

	// GetWorkspaceLimit returns the value in effect for one workspace,
	// honoring its allocation for workspace-scoped features.
	GetWorkspaceLimit(ctx context.Context, org Organization, workspaceID uuid.UUID, f Feature) (Value, error)

	// CanUse reports whether amount more units fit in the remaining quota.
	CanUse(ctx context.Context, org Organization, f Feature, amount int64) (bool, error)
	CanUseInWorkspace(ctx context.Context, org Organization, workspaceID uuid.UUID, f Feature, amount int64) (bool, error)

	// GetCurrentUsage returns usage in the current tracking window,
	// aggregated across workspaces for workspace-scoped features.
	GetCurrentUsage(ctx context.Context, org Organization, f Feature) (int64, error)
	GetWorkspaceUsage(ctx context.Context, org Organization, workspaceID uuid.UUID, f Feature) (int64, error)

	// GetRemainingUsage returns the units left, Unlimited for unlimited
	// features and 0 for absent or boolean ones.
	GetRemainingUsage(ctx context.Context, org Organization, f Feature) (int64, error)
	GetWorkspaceRemainingUsage(ctx context.Context, org Organization, workspaceID uuid.UUID, f Feature) (int64, error)

	// GetUsagePercentage returns usage relative to the limit, capped at 100.
	GetUsagePercentage(ctx context.Context, org Organization, f Feature) (float64, error)
	GetWorkspaceUsagePercentage(ctx context.Context, org Organization, workspaceID uuid.UUID, f Feature) (float64, error)

	// ConsumeFeature atomically records amount units if they fit in the quota.
	// It returns false without mutating anything when they do not.
	ConsumeFeature(ctx context.Context, org Organization, f Feature, amount int64) (bool, error)
	ConsumeInWorkspace(ctx context.Context, org Organization, workspaceID uuid.UUID, f Feature, amount int64) (bool, error)

	// UnconsumeFeature releases amount units, clamping usage at zero.
	UnconsumeFeature(ctx context.Context, org Organization, f Feature, amount int64) error
	UnconsumeInWorkspace(ctx context.Context, org Organization, workspaceID uuid.UUID, f Feature, amount int64) error

	// Reserve is ConsumeFeature returning ErrLimitExceeded on rejection.
	Reserve(ctx context.Context, org Organization, f Feature, amount int64) error
	ReserveInWorkspace(ctx context.Context, org Organization, workspaceID uuid.UUID, f Feature, amount int64) error

	// GetUsageSummary reports every active catalog feature. Read only.
	GetUsageSummary(ctx context.Context, org Organization) (Summary, error)
}

type service struct {
	catalog     *Catalog
	overrides   OverrideStore
	allocations AllocationStore
	tracker     *UsageTracker

	logger             *slog.Logger
	now                func() time.Time
	registerer         prometheus.Registerer
	metrics            *metrics
	summaryConcurrency int
}

// NewService creates the entitlement engine.
// The catalog must register every feature in KnownFeatures.
func NewService(catalog *Catalog, overrides OverrideStore, allocations AllocationStore, usage UsageStore, opts ...Option) (Service, error) {
	if catalog == nil || overrides == nil || allocations == nil || usage == nil {
		return nil, errors.Join(ErrInvalidConfiguration, errors.New("catalog and stores are required"))
	}
	if err := catalog.Validate(KnownFeatures()...); err != nil {
		return nil, errors.Join(ErrInvalidConfiguration, err)
	}

	s := &service{
		catalog:            catalog,
		overrides:          overrides,
		allocations:        allocations,
		logger:             slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:                time.Now,
		summaryConcurrency: 4,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.registerer != nil {
		m, err := newMetrics(s.registerer)
		if err != nil {
			return nil, err
		}
		s.metrics = m
	}
	s.tracker = NewUsageTracker(usage, s.now)
	s.logger = s.logger.With(logger.Component("entitlement"))

	return s, nil
}

// HasFeature reports whether the feature is granted at organization level.
func (s *service) HasFeature(ctx context.Context, org Organization, f Feature) bool {
	def, v, err := s.resolve(ctx, org, uuid.NullUUID{}, f)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to resolve feature",
			logger.OrganizationID(org.ID),
			logger.Feature(string(f)),
			logger.Error(err),
		)
		return false
	}
	return granted(def, v)
}

func (s *service) GetLimit(ctx context.Context, org Organization, f Feature) (Value, error) {
	_, v, err := s.resolve(ctx, org, uuid.NullUUID{}, f)
	return v, err
}

func (s *service) GetWorkspaceLimit(ctx context.Context, org Organization, workspaceID uuid.UUID, f Feature) (Value, error) {
	_, v, err := s.resolve(ctx, org, workspaceRef(workspaceID), f)
	return v, err
}

func (s *service) CanUse(ctx context.Context, org Organization, f Feature, amount int64) (bool, error) {
	return s.canUse(ctx, org, uuid.NullUUID{}, f, amount)
}

func (s *service) CanUseInWorkspace(ctx context.Context, org Organization, workspaceID uuid.UUID, f Feature, amount int64) (bool, error) {
	return s.canUse(ctx, org, workspaceRef(workspaceID), f, amount)
}

func (s *service) GetCurrentUsage(ctx context.Context, org Organization, f Feature) (int64, error) {
	return s.currentUsage(ctx, org, uuid.NullUUID{}, f)
}

func (s *service) GetWorkspaceUsage(ctx context.Context, org Organization, workspaceID uuid.UUID, f Feature) (int64, error) {
	return s.currentUsage(ctx, org, workspaceRef(workspaceID), f)
}

func (s *service) GetRemainingUsage(ctx context.Context, org Organization, f Feature) (int64, error) {
	return s.remaining(ctx, org, uuid.NullUUID{}, f)
}

func (s *service) GetWorkspaceRemainingUsage(ctx context.Context, org Organization, workspaceID uuid.UUID, f Feature) (int64, error) {
	return s.remaining(ctx, org, workspaceRef(workspaceID), f)
}

func (s *service) GetUsagePercentage(ctx context.Context, org Organization, f Feature) (float64, error) {
	return s.percentage(ctx, org, uuid.NullUUID{}, f)
}

func (s *service) GetWorkspaceUsagePercentage(ctx context.Context, org Organization, workspaceID uuid.UUID, f Feature) (float64, error) {
	return s.percentage(ctx, org, workspaceRef(workspaceID), f)
}

func (s *service) ConsumeFeature(ctx context.Context, org Organization, f Feature, amount int64) (bool, error) {
	return s.consume(ctx, org, uuid.NullUUID{}, f, amount)
}

func (s *service) ConsumeInWorkspace(ctx context.Context, org Organization, workspaceID uuid.UUID, f Feature, amount int64) (bool, error) {
	return s.consume(ctx, org, workspaceRef(workspaceID), f, amount)
}

func (s *service) UnconsumeFeature(ctx context.Context, org Organization, f Feature, amount int64) error {
	return s.unconsume(ctx, org, uuid.NullUUID{}, f, amount)
}

func (s *service) UnconsumeInWorkspace(ctx context.Context, org Organization, workspaceID uuid.UUID, f Feature, amount int64) error {
	return s.unconsume(ctx, org, workspaceRef(workspaceID), f, amount)
}

func (s *service) Reserve(ctx context.Context, org Organization, f Feature, amount int64) error {
	return s.reserve(ctx, org, uuid.NullUUID{}, f, amount)
}

func (s *service) ReserveInWorkspace(ctx context.Context, org Organization, workspaceID uuid.UUID, f Feature, amount int64) error {
	return s.reserve(ctx, org, workspaceRef(workspaceID), f, amount)
}

// resolve returns the definition and effective value of f.
// Resolution order: workspace allocation, active override, plan.
func (s *service) resolve(ctx context.Context, org Organization, ws uuid.NullUUID, f Feature) (Definition, Value, error) {
	def, ok := s.catalog.Definition(f)
	if !ok {
		return Definition{}, Absent(), nil
	}

	v, err := s.organizationValue(ctx, org, def)
	if err != nil {
		return def, Absent(), err
	}

	// Allocations only narrow or widen a feature the organization already has.
	if !ws.Valid || !def.IsWorkspaceScoped() || v.IsAbsent() {
		return def, v, nil
	}

	a, err := s.allocations.GetAllocation(ctx, ws.UUID, f)
	switch {
	case errors.Is(err, ErrAllocationNotFound):
		return def, v, nil
	case err != nil:
		return def, Absent(), errors.Join(ErrStorage, err)
	case a.OrganizationID != org.ID:
		s.logger.LogAttrs(ctx, slog.LevelWarn, "ignoring allocation of foreign organization",
			logger.OrganizationID(org.ID),
			logger.WorkspaceID(ws.UUID),
			logger.Feature(string(f)),
		)
		return def, v, nil
	}

	return def, a.Value().normalize(def.Type), nil
}

func (s *service) organizationValue(ctx context.Context, org Organization, def Definition) (Value, error) {
	overrides, err := s.overrides.ListOverrides(ctx, org.ID, def.Key)
	if err != nil {
		return Absent(), errors.Join(ErrStorage, err)
	}
	if o, ok := ResolveOverride(overrides, s.now()); ok {
		return o.Value.normalize(def.Type), nil
	}

	v, _ := org.Plan.Limit(def.Key)
	return v.normalize(def.Type), nil
}

func (s *service) canUse(ctx context.Context, org Organization, ws uuid.NullUUID, f Feature, amount int64) (bool, error) {
	if amount < 0 {
		return false, ErrInvalidAmount
	}

	def, v, err := s.resolve(ctx, org, ws, f)
	if err != nil {
		return false, err
	}
	if def.IsBoolean() || v.IsAbsent() {
		return granted(def, v), nil
	}

	limit, _ := v.Int()
	if limit == Unlimited {
		return true, nil
	}

	current, err := s.tracker.usage(ctx, def, org.ID, ws)
	if err != nil {
		return false, err
	}
	return Fits(current, amount, limit), nil
}

func (s *service) currentUsage(ctx context.Context, org Organization, ws uuid.NullUUID, f Feature) (int64, error) {
	def, ok := s.catalog.Definition(f)
	if !ok || def.IsBoolean() {
		return 0, nil
	}
	return s.tracker.usage(ctx, def, org.ID, ws)
}

func (s *service) remaining(ctx context.Context, org Organization, ws uuid.NullUUID, f Feature) (int64, error) {
	def, v, err := s.resolve(ctx, org, ws, f)
	if err != nil {
		return 0, err
	}
	limit, ok := v.Int()
	switch {
	case def.IsBoolean() || !ok:
		return 0, nil
	case limit == Unlimited:
		return Unlimited, nil
	}

	current, err := s.tracker.usage(ctx, def, org.ID, ws)
	if err != nil {
		return 0, err
	}
	return max(0, limit-current), nil
}

func (s *service) percentage(ctx context.Context, org Organization, ws uuid.NullUUID, f Feature) (float64, error) {
	def, v, err := s.resolve(ctx, org, ws, f)
	if err != nil {
		return 0, err
	}
	limit, ok := v.Int()
	if def.IsBoolean() || !ok || limit == Unlimited {
		return 0, nil
	}

	current, err := s.tracker.usage(ctx, def, org.ID, ws)
	if err != nil {
		return 0, err
	}
	return usagePercentage(current, limit), nil
}

func (s *service) consume(ctx context.Context, org Organization, ws uuid.NullUUID, f Feature, amount int64) (bool, error) {
	defer s.metrics.observe("consume")()

	if amount < 0 {
		return false, ErrInvalidAmount
	}

	def, v, err := s.resolve(ctx, org, ws, f)
	if err != nil {
		s.metrics.consume(f, "error")
		return false, err
	}

	// Boolean features and ungranted ones never reach the tracker.
	if def.IsBoolean() || v.IsAbsent() {
		ok := granted(def, v)
		s.metrics.consume(f, result(ok))
		return ok, nil
	}

	limit, _ := v.Int()
	if amount == 0 {
		if limit == Unlimited {
			return true, nil
		}
		current, err := s.tracker.usage(ctx, def, org.ID, ws)
		if err != nil {
			return false, err
		}
		return current <= limit, nil
	}

	usage, ok, err := s.tracker.IncrementWithin(ctx, def, org.ID, ws, amount, limit)
	if err != nil {
		s.metrics.consume(f, "error")
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to consume feature",
			logger.OrganizationID(org.ID),
			logger.WorkspaceID(nullableID(ws)),
			logger.Feature(string(f)),
			logger.Error(err),
		)
		return false, err
	}

	s.metrics.consume(f, result(ok))
	s.logger.LogAttrs(ctx, slog.LevelDebug, "feature consumption",
		logger.OrganizationID(org.ID),
		logger.WorkspaceID(nullableID(ws)),
		logger.Feature(string(f)),
		logger.PlanID(planID(org)),
		slog.Int64("amount", amount),
		slog.Int64("usage", usage),
		slog.Int64("limit", limit),
		slog.Bool("accepted", ok),
	)
	return ok, nil
}

func (s *service) unconsume(ctx context.Context, org Organization, ws uuid.NullUUID, f Feature, amount int64) error {
	defer s.metrics.observe("unconsume")()

	if amount < 0 {
		return ErrInvalidAmount
	}

	def, ok := s.catalog.Definition(f)
	if !ok || def.IsBoolean() || amount == 0 {
		return nil
	}

	usage, err := s.tracker.Decrement(ctx, def, org.ID, ws, amount)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelError, "failed to unconsume feature",
			logger.OrganizationID(org.ID),
			logger.WorkspaceID(nullableID(ws)),
			logger.Feature(string(f)),
			logger.Error(err),
		)
		return err
	}

	s.metrics.unconsume(f)
	s.logger.LogAttrs(ctx, slog.LevelDebug, "feature unconsumed",
		logger.OrganizationID(org.ID),
		logger.WorkspaceID(nullableID(ws)),
		logger.Feature(string(f)),
		logger.PlanID(planID(org)),
		slog.Int64("amount", amount),
		slog.Int64("usage", usage),
	)
	return nil
}

func (s *service) reserve(ctx context.Context, org Organization, ws uuid.NullUUID, f Feature, amount int64) error {
	ok, err := s.consume(ctx, org, ws, f, amount)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLimitExceeded
	}
	return nil
}

// granted reports whether a resolved value gives access to the feature.
func granted(def Definition, v Value) bool {
	if def.IsBoolean() {
		return v.Enabled()
	}
	return !v.IsAbsent()
}

func usagePercentage(current, limit int64) float64 {
	if limit == 0 {
		if current > 0 {
			return 100
		}
		return 0
	}
	return min(100, float64(current)/float64(limit)*100)
}

func workspaceRef(id uuid.UUID) uuid.NullUUID {
	if id == uuid.Nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: id, Valid: true}
}

func planID(org Organization) string {
	if org.Plan == nil {
		return ""
	}
	return org.Plan.ID
}

func nullableID(ws uuid.NullUUID) any {
	if !ws.Valid {
		return nil
	}
	return ws.UUID
}

func result(ok bool) string {
	if ok {
		return "accepted"
	}
	return "rejected"
}

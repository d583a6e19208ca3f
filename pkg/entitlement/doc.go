// Package entitlement implements plan-based feature metering.
//
// It resolves the effective value of a feature for an organization from its
// plan, organization overrides and workspace allocations, tracks usage per
// tracking window and atomically admits or rejects consumption.
//
// # Values
//
// A Value is absent, a boolean flag, a non-negative limit, or Unlimited (-1).
// Zero is a valid hard limit: the feature is granted with no allowance.
//
// # Resolution
//
// For a workspace of a workspace-scoped feature, an Allocation replaces the
// organization value, provided the organization has the feature at all.
// Otherwise an active Override wins over the plan. Expired overrides are
// ignored.
//
// # Usage
//
// Counters live in a UsageStore keyed by organization, feature, optional
// workspace and window. Lifetime windows never end; monthly and yearly
// windows follow UTC calendar bounds, so usage resets lazily when a new
// window starts. Organization-level reads aggregate all workspace counters
// of the window.
//
// ConsumeFeature is a single conditional increment in the store, so two
// concurrent callers cannot jointly exceed a limit:
//
//	store := entitlement.NewMemoryStore()
//	svc, err := entitlement.NewService(entitlement.DefaultCatalog(), store, store, store,
//		entitlement.WithLogger(log),
//	)
//	if err != nil {
//		return err
//	}
//
//	org := entitlement.Organization{ID: orgID, Plan: plan}
//	ok, err := svc.ConsumeFeature(ctx, org, entitlement.FeatureTeamMembers, 1)
//	if err != nil {
//		return err // roll back the surrounding transaction
//	}
//	if !ok {
//		// over quota, nothing was recorded
//	}
//
// UnconsumeFeature is the compensating action; it never drives a counter
// below zero.
//
// # Storage
//
// MemoryStore serves tests and single-process use. Subpackages pgstore,
// redisstore and mongostore provide durable backends.
package entitlement

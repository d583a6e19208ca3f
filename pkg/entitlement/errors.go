package entitlement

import "errors"

// Domain errors for entitlement operations
var (
	// Catalog errors
	ErrUnknownFeature           = errors.New("entitlement.errors.unknown_feature")
	ErrInvalidFeatureDefinition = errors.New("entitlement.errors.invalid_feature_definition")
	ErrInvalidValue             = errors.New("entitlement.errors.invalid_value")

	// Plan errors
	ErrPlanNotFound             = errors.New("entitlement.errors.plan_not_found")
	ErrInvalidPlanConfiguration = errors.New("entitlement.errors.invalid_plan_configuration")
	ErrFailedToLoadPlans        = errors.New("entitlement.errors.failed_to_load_plans")
	ErrInvalidSeed              = errors.New("entitlement.errors.invalid_seed")

	// Override and allocation errors
	ErrOverrideNotFound   = errors.New("entitlement.errors.override_not_found")
	ErrAllocationNotFound = errors.New("entitlement.errors.allocation_not_found")

	// Usage errors
	ErrInvalidAmount = errors.New("entitlement.errors.invalid_amount")
	ErrLimitExceeded = errors.New("entitlement.errors.limit_exceeded")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("entitlement.errors.invalid_configuration")

	// System errors
	ErrStorage            = errors.New("entitlement.errors.storage")
	ErrHistoryUnsupported = errors.New("entitlement.errors.history_unsupported")
)

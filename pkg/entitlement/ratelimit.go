package entitlement

import (
	"context"
	"net/http"

	"github.com/dmitrymomot/entitlements/pkg/ratelimiter"
)

// APIRateLimit returns the request budget granted by the api_rate_limit
// feature. Organizations without a plan, or whose plan does not grant the
// feature, get base. limited is false for unlimited plans.
func APIRateLimit(ctx context.Context, svc Service, org Organization, base int) (limit int, limited bool, err error) {
	if org.Plan == nil {
		return base, true, nil
	}

	v, err := svc.GetLimit(ctx, org, FeatureAPIRateLimit)
	if err != nil {
		return 0, false, err
	}

	n, ok := v.Int()
	switch {
	case !ok:
		return base, true, nil
	case n == Unlimited:
		return 0, false, nil
	default:
		return int(n), true, nil
	}
}

// RateLimitConfig adapts APIRateLimit to ratelimiter.DynamicMiddleware.
// The plan value replaces capacity and refill rate of base; the refill
// interval is kept. orgFunc defaults to OrganizationFromContext; requests
// without an organization use base unchanged.
func RateLimitConfig(svc Service, base ratelimiter.Config, orgFunc func(r *http.Request) (Organization, bool)) ratelimiter.ConfigFunc {
	if orgFunc == nil {
		orgFunc = func(r *http.Request) (Organization, bool) {
			return OrganizationFromContext(r.Context())
		}
	}

	return func(r *http.Request) (ratelimiter.Config, bool, error) {
		org, ok := orgFunc(r)
		if !ok {
			return base, true, nil
		}

		limit, limited, err := APIRateLimit(r.Context(), svc, org, base.Capacity)
		if err != nil || !limited {
			return ratelimiter.Config{}, false, err
		}

		return base.WithCapacity(limit), true, nil
	}
}

package entitlement_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlements/pkg/entitlement"
	"github.com/dmitrymomot/entitlements/pkg/ratelimiter"
)

func TestAPIRateLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	limit, limited, err := entitlement.APIRateLimit(ctx, f.svc, newOrg(nil), 30)
	require.NoError(t, err)
	assert.True(t, limited)
	assert.Equal(t, 30, limit)

	limit, limited, err = entitlement.APIRateLimit(ctx, f.svc, newOrg(freePlan()), 30)
	require.NoError(t, err)
	assert.True(t, limited)
	assert.Equal(t, 60, limit)

	_, limited, err = entitlement.APIRateLimit(ctx, f.svc, newOrg(proPlan()), 30)
	require.NoError(t, err)
	assert.False(t, limited)

	limit, limited, err = entitlement.APIRateLimit(ctx, f.svc, newOrg(newPlan("bare").build()), 30)
	require.NoError(t, err)
	assert.True(t, limited)
	assert.Equal(t, 30, limit)
}

func TestRateLimitConfig_Middleware(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	base := ratelimiter.Config{Capacity: 2, RefillRate: 2, RefillInterval: time.Minute}

	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)

	free := newOrg(newPlan("tiny").limit(entitlement.FeatureAPIRateLimit, 3).build())
	pro := newOrg(proPlan())

	keyFunc := func(r *http.Request) string {
		org, _ := entitlement.OrganizationFromContext(r.Context())
		return org.ID.String()
	}
	mw := ratelimiter.DynamicMiddleware(store, keyFunc, entitlement.RateLimitConfig(f.svc, base, nil))
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(org *entitlement.Organization) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/things", nil)
		if org != nil {
			req = req.WithContext(entitlement.WithOrganization(req.Context(), *org))
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for range 3 {
		rec := call(&free)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	}
	assert.Equal(t, http.StatusTooManyRequests, call(&free).Code)

	for range 10 {
		assert.Equal(t, http.StatusNoContent, call(&pro).Code)
	}

	// anonymous requests share the base bucket
	assert.Equal(t, "2", call(nil).Header().Get("X-RateLimit-Limit"))
}

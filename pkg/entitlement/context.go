package entitlement

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/entitlements/pkg/logger"
)

type organizationCtxKey struct{}

// WithOrganization stores the organization in the context for downstream access.
func WithOrganization(ctx context.Context, org Organization) context.Context {
	return context.WithValue(ctx, organizationCtxKey{}, org)
}

// OrganizationFromContext retrieves the organization from the context, if present.
func OrganizationFromContext(ctx context.Context) (Organization, bool) {
	org, ok := ctx.Value(organizationCtxKey{}).(Organization)
	return org, ok
}

// LoggerExtractor adds the context organization to log records.
// Pass it to logger.WithContextExtractors.
func LoggerExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		org, ok := OrganizationFromContext(ctx)
		if !ok {
			return slog.Attr{}, false
		}
		return logger.OrganizationID(org.ID), true
	}
}

package entitlement

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures the entitlement service.
type Option func(*service)

// WithLogger sets the service logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(s *service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the time source used for override expiry and usage windows.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics registers the service collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *service) {
		s.registerer = reg
	}
}

// WithSummaryConcurrency caps the number of features evaluated in parallel
// by GetUsageSummary.
func WithSummaryConcurrency(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.summaryConcurrency = n
		}
	}
}

package entitlement

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the engine collectors. A nil *metrics records nothing.
type metrics struct {
	consumed   *prometheus.CounterVec
	unconsumed *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		consumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "entitlements",
				Name:      "consume_total",
				Help:      "Consumption attempts by feature and result.",
			},
			[]string{"feature", "result"},
		),
		unconsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "entitlements",
				Name:      "unconsume_total",
				Help:      "Compensating unconsume calls by feature.",
			},
			[]string{"feature"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "entitlements",
				Name:      "operation_duration_seconds",
				Help:      "Entitlement operation duration in seconds.",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"operation"},
		),
	}

	for _, c := range []prometheus.Collector{m.consumed, m.unconsumed, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Join(ErrInvalidConfiguration, err)
		}
	}
	return m, nil
}

// observe returns a function recording the operation duration.
func (m *metrics) observe(op string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (m *metrics) consume(f Feature, result string) {
	if m == nil {
		return
	}
	m.consumed.WithLabelValues(string(f), result).Inc()
}

func (m *metrics) unconsume(f Feature) {
	if m == nil {
		return
	}
	m.unconsumed.WithLabelValues(string(f)).Inc()
}

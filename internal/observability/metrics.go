package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all httptap Prometheus metrics.
type Metrics struct {
	ExchangesTotal *prometheus.CounterVec
	EmissionsTotal *prometheus.CounterVec
	BlockedTotal   *prometheus.CounterVec
	CapturedBytes  *prometheus.HistogramVec
}

// NewMetrics creates and registers all httptap metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ExchangesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "httptap_exchanges_total",
			Help: "Intercepted exchanges by outcome (handled, blocked, skipped, reentrant).",
		}, []string{"outcome"}),

		EmissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "httptap_emissions_total",
			Help: "Capture emissions by completion path (sync, async).",
		}, []string{"path"}),

		BlockedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "httptap_blocked_total",
			Help: "Requests blocked by policy, per rule.",
		}, []string{"rule"}),

		CapturedBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "httptap_captured_body_bytes",
			Help:    "Captured body size per direction.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"direction"}),
	}
}

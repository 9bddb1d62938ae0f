package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics tracks outbound backend calls made by the request gateway.
type GatewayMetrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	RefreshesTotal  *prometheus.CounterVec
	ForcedLogouts   prometheus.Counter
	BreakerState    prometheus.Gauge
}

// NewGatewayMetrics creates and registers gateway metrics on the given registry.
// A nil registerer yields working but unregistered collectors.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	m := &GatewayMetrics{
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "request_duration_seconds",
			Help:      "Duration of backend requests in seconds, per attempt.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "requests_total",
			Help:      "Total backend requests by outcome (ok or failure kind).",
		}, []string{"method", "endpoint", "outcome"}),
		RefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts by result.",
		}, []string{"result"}),
		ForcedLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "forced_logouts_total",
			Help:      "Sessions ended because authorization could not be recovered.",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "circuit_breaker_state",
			Help:      "Backend circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.RequestDuration, m.RequestsTotal, m.RefreshesTotal, m.ForcedLogouts, m.BreakerState)
	}
	return m
}

// ObserveRequest records one attempt against the backend.
func (m *GatewayMetrics) ObserveRequest(method, endpoint, outcome string, elapsed time.Duration) {
	m.RequestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
	m.RequestsTotal.WithLabelValues(method, endpoint, outcome).Inc()
}

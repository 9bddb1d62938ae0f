package metrics

import "github.com/prometheus/client_golang/prometheus"

// StateStoreMetrics tracks commands sent to the redis state backend.
type StateStoreMetrics struct {
	OpsTotal         *prometheus.CounterVec
	OpDuration       *prometheus.HistogramVec
	ConnectionErrors prometheus.Counter
}

// NewStateStoreMetrics creates and registers state store metrics on the given registry.
// A nil registerer yields working but unregistered collectors.
func NewStateStoreMetrics(reg prometheus.Registerer) *StateStoreMetrics {
	m := &StateStoreMetrics{
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "operations_total",
			Help:      "Total state store commands by status.",
		}, []string{"operation", "status"}),
		OpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "operation_duration_seconds",
			Help:      "Duration of state store commands in seconds.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
		ConnectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "state",
			Name:      "connection_errors_total",
			Help:      "Failed attempts to connect to the state store.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.OpsTotal, m.OpDuration, m.ConnectionErrors)
	}
	return m
}

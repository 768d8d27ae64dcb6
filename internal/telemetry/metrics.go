package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the Prism gateway.
type Metrics struct {
	OperationTotal      *prometheus.CounterVec
	OperationDurationMs *prometheus.HistogramVec
	RoutingConflicts    *prometheus.CounterVec
	TransportRetries    *prometheus.CounterVec
	UploadBytesTotal    *prometheus.CounterVec
	DuplicateTotal      *prometheus.CounterVec
	PolicyActionTotal   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		OperationTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prism_operation_total",
			Help: "Total number of operations processed by the gateway.",
		}, []string{"endpoint", "status"}),

		OperationDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "prism_operation_duration_ms",
			Help:    "Total operation duration in milliseconds (including upstream latency).",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"endpoint"}),

		RoutingConflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prism_routing_conflict_total",
			Help: "Total routing decisions where more than one endpoint predicate matched.",
		}, []string{"chosen"}),

		TransportRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prism_transport_retry_total",
			Help: "Total transport attempts beyond the first, by endpoint.",
		}, []string{"endpoint"}),

		UploadBytesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prism_upload_bytes_total",
			Help: "Total bytes of file content sent in multipart requests.",
		}, []string{"endpoint"}),

		DuplicateTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prism_duplicate_request_total",
			Help: "Total requests whose idempotency key was already seen within its bucket.",
		}, []string{"endpoint"}),

		PolicyActionTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "prism_policy_action_total",
			Help: "Total policy decisions taken on incoming operations.",
		}, []string{"action"}),
	}
}

// RecordOperation records metrics for a completed operation.
func (m *Metrics) RecordOperation(labels OperationLabels) {
	m.OperationTotal.WithLabelValues(labels.Endpoint, labels.Status).Inc()
	m.OperationDurationMs.WithLabelValues(labels.Endpoint).Observe(labels.DurationMs)

	if labels.Retries > 0 {
		m.TransportRetries.WithLabelValues(labels.Endpoint).Add(float64(labels.Retries))
	}
	if labels.UploadBytes > 0 {
		m.UploadBytesTotal.WithLabelValues(labels.Endpoint).Add(float64(labels.UploadBytes))
	}
	if labels.Duplicate {
		m.DuplicateTotal.WithLabelValues(labels.Endpoint).Inc()
	}
}

// RecordRoutingConflict records a routing decision that matched multiple endpoints.
func (m *Metrics) RecordRoutingConflict(chosen string) {
	m.RoutingConflicts.WithLabelValues(chosen).Inc()
}

// RecordPolicyAction records a policy decision metric.
func (m *Metrics) RecordPolicyAction(action string) {
	m.PolicyActionTotal.WithLabelValues(action).Inc()
}

// OperationLabels holds the label values for recording an operation.
type OperationLabels struct {
	Endpoint    string
	Status      string
	DurationMs  float64
	Retries     int
	UploadBytes int64
	Duplicate   bool
}

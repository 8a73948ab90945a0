package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-wide Prometheus metrics. Feature-specific metrics live
// next to their feature (see internal/face/metrics).
type Metrics struct {
	HTTPRequestDuration *prometheus.HistogramVec
	AuditEventsDropped  prometheus.Counter
}

// New creates and registers all process-wide Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "faceledger_http_request_duration_seconds",
			Help:    "Latency of HTTP requests by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		AuditEventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "faceledger_audit_events_dropped_total",
			Help: "Audit events dropped because the audit inbox was full",
		}),
	}
}

// ObserveRequest records one HTTP request observation.
func (m *Metrics) ObserveRequest(route, status string, seconds float64) {
	if m != nil {
		m.HTTPRequestDuration.WithLabelValues(route, status).Observe(seconds)
	}
}

// IncrementAuditDropped increments the dropped audit event counter by 1.
func (m *Metrics) IncrementAuditDropped() {
	if m != nil {
		m.AuditEventsDropped.Inc()
	}
}

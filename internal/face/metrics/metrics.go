package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the face module.
type Metrics struct {
	// Capture sessions by final outcome
	CaptureOutcome *prometheus.CounterVec

	// Verification scans by result
	VerificationOutcome *prometheus.CounterVec

	// Enrollment operations by operation and result
	EnrollmentOps *prometheus.CounterVec

	// Full verification scan latency including the store read
	VerifyLatency prometheus.Histogram

	// Quality of frames that triggered an auto capture
	CaptureQuality prometheus.Histogram
}

// New creates a new Metrics instance with all face module metrics registered.
func New() *Metrics {
	return &Metrics{
		CaptureOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "faceledger_face_captures_total",
			Help: "Capture attempts by trigger and outcome",
		}, []string{"trigger", "outcome"}), // trigger: "auto", "manual"

		VerificationOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "faceledger_face_verifications_total",
			Help: "Verification scans by outcome",
		}, []string{"outcome"}), // outcome: "matched", "no_match", "unavailable"

		EnrollmentOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "faceledger_face_enrollments_total",
			Help: "Enrollment store operations by operation and result",
		}, []string{"operation", "result"}),

		VerifyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "faceledger_face_verify_duration_seconds",
			Help:    "Duration of a full verification scan including the store read",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		CaptureQuality: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "faceledger_face_capture_quality",
			Help:    "Quality score of frames that produced an embedding",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}
}

// IncrementCapture records one capture attempt outcome.
func (m *Metrics) IncrementCapture(trigger, outcome string) {
	if m != nil {
		m.CaptureOutcome.WithLabelValues(trigger, outcome).Inc()
	}
}

// IncrementVerification records a verification outcome.
func (m *Metrics) IncrementVerification(outcome string) {
	if m != nil {
		m.VerificationOutcome.WithLabelValues(outcome).Inc()
	}
}

// IncrementEnrollment records an enrollment store operation.
func (m *Metrics) IncrementEnrollment(operation, result string) {
	if m != nil {
		m.EnrollmentOps.WithLabelValues(operation, result).Inc()
	}
}

// ObserveVerifyLatency records the total verification duration.
func (m *Metrics) ObserveVerifyLatency(d time.Duration) {
	if m != nil {
		m.VerifyLatency.Observe(d.Seconds())
	}
}

// ObserveCaptureQuality records the quality behind a produced embedding.
func (m *Metrics) ObserveCaptureQuality(q float64) {
	if m != nil {
		m.CaptureQuality.Observe(q)
	}
}

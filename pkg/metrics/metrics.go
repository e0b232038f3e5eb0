package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LifecycleDuration tracks the latency of registration and proof lifecycle operations
	LifecycleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "volunteer_portal_lifecycle_duration_seconds",
			Help: "Duration of lifecycle operations in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
			},
		},
		[]string{"operation", "status"},
	)

	// PointsAwarded counts points granted through proof approval
	PointsAwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "volunteer_portal_points_awarded_total",
		Help: "Total points awarded through approved proofs",
	})

	// CertificateIssuance counts certificate issuance attempts by result
	CertificateIssuance = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "volunteer_portal_certificate_issuance_total",
			Help: "Certificate issuance attempts by result",
		},
		[]string{"result"}, // issued, failed, dropped
	)
)

// ObserveLifecycle records the duration of a lifecycle operation started at start
func ObserveLifecycle(operation, status string, start time.Time) {
	LifecycleDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}

// RecordPointsAwarded adds awarded points to the counter
func RecordPointsAwarded(points int) {
	PointsAwarded.Add(float64(points))
}

// RecordCertificate records a certificate issuance outcome
func RecordCertificate(result string) {
	CertificateIssuance.WithLabelValues(result).Inc()
}

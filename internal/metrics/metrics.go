package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestBuckets = []float64{
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
	10.0,  // 10s
}

var (
	// EnrollDuration tracks the latency of first-login enrollment
	EnrollDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promotion_enroll_duration_seconds",
			Help:    "Duration of first-login enrollment requests in seconds",
			Buckets: requestBuckets,
		},
		[]string{"status"}, // eligible, rejected or failed
	)

	// RedeemDuration tracks the latency of top-ups, payment included
	RedeemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promotion_redeem_duration_seconds",
			Help:    "Duration of top-up requests in seconds",
			Buckets: requestBuckets,
		},
		[]string{"status"}, // success or failed
	)

	// VouchersIssued counts vouchers created by enrollment
	VouchersIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promotion_vouchers_issued_total",
			Help: "Number of vouchers issued to first-login participants",
		},
	)

	// EventsProcessed counts first-login events handled by the worker
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promotion_events_processed_total",
			Help: "First-login events handled by the worker",
		},
		[]string{"outcome"}, // enrolled, rejected, retry or dropped
	)
)

// RecordEnrollDuration records the duration of an enrollment request
func RecordEnrollDuration(status string, duration float64) {
	EnrollDuration.WithLabelValues(status).Observe(duration)
}

// RecordRedeemDuration records the duration of a top-up request
func RecordRedeemDuration(status string, duration float64) {
	RedeemDuration.WithLabelValues(status).Observe(duration)
}

// RecordVoucherIssued increments the issued voucher counter
func RecordVoucherIssued() {
	VouchersIssued.Inc()
}

// RecordEventProcessed increments the worker outcome counter
func RecordEventProcessed(outcome string) {
	EventsProcessed.WithLabelValues(outcome).Inc()
}

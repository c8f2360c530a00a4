// Package metrics holds the prometheus collectors for HTTP traffic, vendor
// calls and diary writes.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrilog_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nutrilog_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrilog_rate_limited_total",
			Help: "Requests rejected by the per-user rate limiter",
		},
		[]string{"endpoint"},
	)

	// Vendor Metrics (logmeal, edamam, gemini, s3)
	VendorRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrilog_vendor_requests_total",
			Help: "Total number of outbound vendor calls",
		},
		[]string{"vendor", "operation", "outcome"},
	)

	VendorRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nutrilog_vendor_request_duration_seconds",
			Help:    "Duration of outbound vendor calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"vendor", "operation"},
	)

	// Diary Metrics
	MealEntryWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrilog_meal_entry_writes_total",
			Help: "Meal entry writes by kind (create, append, remove_item, delete)",
		},
		[]string{"kind"},
	)

	NutritionFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nutrilog_nutrition_fallbacks_total",
			Help: "Items persisted with zero nutrition after a failed lookup",
		},
	)

	WSConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nutrilog_websocket_connections_active",
			Help: "Current number of open websocket connections",
		},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordVendorCall records one outbound call. err == nil counts as success.
func RecordVendorCall(vendor, operation string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	VendorRequestsTotal.WithLabelValues(vendor, operation, outcome).Inc()
	VendorRequestDuration.WithLabelValues(vendor, operation).Observe(duration.Seconds())
}

func RecordMealEntryWrite(kind string) {
	MealEntryWrites.WithLabelValues(kind).Inc()
}

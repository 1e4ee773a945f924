package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsetrail_events_ingested_total",
			Help: "Events accepted by the ingestion endpoint",
		},
		[]string{"event_type"},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsetrail_events_rejected_total",
			Help: "Ingestion requests that were not stored",
		},
		[]string{"reason"}, // "validation", "too_large", "store"
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsetrail_rate_limited_total",
			Help: "Requests refused by a per-IP rate limiter",
		},
		[]string{"scope"}, // "track", "login"
	)

	EventsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulsetrail_events_deleted_total",
			Help: "Events removed by single-event deletes",
		},
	)

	Purges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulsetrail_purges_total",
			Help: "Completed purge operations",
		},
	)

	AuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pulsetrail_auth_failures_total",
			Help: "Admin requests refused for a missing or wrong operator credential",
		},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulsetrail_store_operation_duration_seconds",
			Help:    "Latency of event store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pulsetrail_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status_code"},
	)

	EmitterDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsetrail_emitter_deliveries_total",
			Help: "Tracking requests sent by the event emitter, by outcome",
		},
		[]string{"outcome"}, // "sent", "failed", "dropped"
	)

	FeedPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pulsetrail_feed_publish_failures_total",
			Help: "Change feed messages that could not be published",
		},
		[]string{"action"},
	)
)

// ObserveStore records how long a store operation took.
func ObserveStore(backend, operation string, start time.Time) {
	StoreOperationDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}

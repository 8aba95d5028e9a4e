// Package metrics exposes Prometheus collectors for the connector.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync runs
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsevents_sync_runs_total",
			Help: "Total number of sync runs by type and outcome",
		},
		[]string{"sync_type", "outcome"}, // outcome: success, failed, stopped
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hsevents_sync_duration_seconds",
			Help:    "Duration of sync runs in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	SyncRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsevents_sync_records_total",
			Help: "Records processed by sync decision",
		},
		[]string{"decision"}, // created, updated, skipped, errored
	)

	SyncLockContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hsevents_sync_lock_contention_total",
			Help: "Sync attempts rejected because another sync held the lock",
		},
	)

	LastSyncTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hsevents_last_sync_timestamp_seconds",
			Help: "Unix time the last sync finished",
		},
	)

	// Upstream API
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsevents_upstream_requests_total",
			Help: "HubSpot API requests by endpoint and status code",
		},
		[]string{"endpoint", "status"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hsevents_upstream_request_duration_seconds",
			Help:    "HubSpot API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hsevents_upstream_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Images
	ImageFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hsevents_image_fetches_total",
			Help: "Image downloads by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// Taxonomies
	TaxonomiesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hsevents_taxonomies_created_total",
			Help: "Dynamic taxonomies materialized",
		},
	)
)

// RecordUpstreamRequest records one HubSpot call. Status 0 means the request
// never got a response.
func RecordUpstreamRequest(endpoint string, status int, duration time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	UpstreamRequests.WithLabelValues(endpoint, code).Inc()
	UpstreamDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordSync records a finished sync run.
func RecordSync(syncType string, success, stopped bool, duration time.Duration, created, updated, skipped, errored int) {
	outcome := "success"
	switch {
	case stopped:
		outcome = "stopped"
	case !success:
		outcome = "failed"
	}
	SyncRuns.WithLabelValues(syncType, outcome).Inc()
	SyncDuration.Observe(duration.Seconds())
	SyncRecords.WithLabelValues("created").Add(float64(created))
	SyncRecords.WithLabelValues("updated").Add(float64(updated))
	SyncRecords.WithLabelValues("skipped").Add(float64(skipped))
	SyncRecords.WithLabelValues("errored").Add(float64(errored))
	LastSyncTimestamp.Set(float64(time.Now().Unix()))
}

// RecordImageFetch records an image attach attempt.
func RecordImageFetch(source string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	ImageFetches.WithLabelValues(source, outcome).Inc()
}

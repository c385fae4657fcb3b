// Package metrics holds the Prometheus collectors shared by the pipeline services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqms_upstream_requests_total",
			Help: "Upstream API calls by operation and outcome",
		},
		[]string{"op", "outcome"}, // outcome=ok/status/transport/decode
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aqms_upstream_request_duration_seconds",
			Help:    "Duration of upstream API calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"op"},
	)

	ETLRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqms_etl_rows_total",
			Help: "Historical observations by outcome",
		},
		[]string{"outcome"}, // fetched, dropped_null, inserted, failed
	)

	SnapshotRows = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aqms_snapshot_rows_written_total",
			Help: "Rows written to the realtime snapshot file",
		},
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqms_events_published_total",
			Help: "Events handed to the broker by outcome",
		},
		[]string{"outcome"}, // ok, encode_error, publish_error
	)

	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqms_events_received_total",
			Help: "Events consumed by the live map by outcome",
		},
		[]string{"outcome"}, // marker, unknown_site, sentinel, decode_error
	)

	RenderFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aqms_render_failures_total",
			Help: "Failed renders to a dashboard display (live sink or HTTP)",
		},
	)

	Markers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aqms_live_markers",
			Help: "Markers currently held by the live map session",
		},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

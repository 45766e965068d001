// Package metrics exposes ORC's Prometheus collectors. Grounded on
// progressdb-ProgressDB and fathimasithara01-chat-app's metrics packages:
// package-level collectors registered once via MustRegister, and a plain
// promhttp.Handler for the scrape endpoint.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesPosted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orc_messages_posted_total",
			Help: "Messages posted, by stream kind (room/dm).",
		},
		[]string{"stream_kind"},
	)

	ReactionsChanged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orc_reactions_changed_total",
			Help: "Reaction add/remove operations, by direction.",
		},
		[]string{"direction"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orc_realtime_sessions_active",
			Help: "Currently open WebSocket sessions.",
		},
	)

	HubFanoutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orc_hub_fanout_duration_seconds",
			Help:    "Time spent fanning one publish out to subscribed sessions.",
			Buckets: prometheus.DefBuckets,
		},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orc_http_requests_total",
			Help: "HTTP requests by method, route, and status.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orc_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(
		MessagesPosted,
		ReactionsChanged,
		ActiveSessions,
		HubFanoutDuration,
		HTTPRequests,
		HTTPLatency,
	)
}

// Handler serves the Prometheus exposition format for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFanout is a small helper so the Hub doesn't need to import time
// twice at every call site; it's used as: defer metrics.ObserveFanout(start).
func ObserveFanout(start time.Time) {
	HubFanoutDuration.Observe(time.Since(start).Seconds())
}

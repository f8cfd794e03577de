/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API metrics
var (
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grimnir_api_request_duration_seconds",
			Help:    "HTTP request latency by method, route and status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_api_requests_total",
			Help: "HTTP requests by method, route and status.",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grimnir_api_active_connections",
			Help: "In-flight HTTP requests.",
		},
	)

	SessionStreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grimnir_player_session_stream_clients",
			Help: "Connected session websocket clients.",
		},
	)
)

// Database metrics
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grimnir_database_query_duration_seconds",
			Help:    "Database query latency by operation and table.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "table"},
	)

	DatabaseErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_database_errors_total",
			Help: "Database errors by operation.",
		},
		[]string{"operation"},
	)
)

// Player metrics
var (
	ResolverLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_player_resolver_lookups_total",
			Help: "Track reference resolutions by path (inline, narrow, broad, cache) and outcome.",
		},
		[]string{"path", "outcome"},
	)

	ResolverDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grimnir_player_resolver_duration_seconds",
			Help:    "Time spent resolving a track reference.",
			Buckets: prometheus.DefBuckets,
		},
	)

	TracksFetchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grimnir_player_tracks_fetched_total",
			Help: "Tracks fetched from the catalog and resolved.",
		},
	)

	TransportLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_player_transport_loads_total",
			Help: "Media loads by outcome (ok, error, superseded).",
		},
		[]string{"outcome"},
	)

	TransportState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grimnir_player_transport_state",
			Help: "Transport state (0=idle, 1=loading, 2=ready, 3=playing, 4=paused, 5=ended).",
		},
	)

	PlaybackErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grimnir_player_playback_errors_total",
			Help: "Media load or play failures.",
		},
	)

	QueueTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_player_queue_transitions_total",
			Help: "Queue transitions by trigger (next, previous, ended, jump, set).",
		},
		[]string{"trigger"},
	)

	PlaysRecordedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grimnir_player_plays_recorded_total",
			Help: "Play events persisted.",
		},
	)

	PlayRecordErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grimnir_player_play_record_errors_total",
			Help: "Play events that failed to persist.",
		},
	)
)

// Catalog sync metrics
var (
	CatalogEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_player_catalog_events_total",
			Help: "Catalog change events received by type.",
		},
		[]string{"type"},
	)

	CatalogEventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grimnir_player_catalog_events_dropped_total",
			Help: "Malformed catalog change events that were dropped.",
		},
	)

	CatalogReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grimnir_player_catalog_reconcile_duration_seconds",
			Help:    "Time spent applying a debounced batch of catalog changes.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
	)

	EventSourceConnected = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "grimnir_player_event_source_connected",
			Help: "Catalog event source connection status (1=connected, 0=disconnected).",
		},
		[]string{"source"},
	)
)

// Smart playlist metrics
var (
	PlaylistRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_player_playlist_refreshes_total",
			Help: "Smart playlist refreshes by playlist and outcome.",
		},
		[]string{"playlist", "outcome"},
	)

	PlaylistSourceErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_player_playlist_source_errors_total",
			Help: "Smart playlist source fetch failures by source.",
		},
		[]string{"source"},
	)

	PlaylistScheduledRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grimnir_player_playlist_scheduled_refreshes_total",
			Help: "Scheduled smart playlist refresh runs by outcome (ok, error, skipped).",
		},
		[]string{"outcome"},
	)
)

// Leader election metrics
var (
	LeaderStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "grimnir_player_leader",
			Help: "Whether this instance holds the background work lease (1=leader, 0=follower).",
		},
	)
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

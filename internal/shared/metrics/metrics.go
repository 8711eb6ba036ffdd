// Package metrics holds the prometheus collectors for the sync core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ofsync_sync_attempts_total",
		Help: "Per-account sync attempts by sync type and outcome.",
	}, []string{"sync_type", "status"})

	RecordsImported = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ofsync_records_imported_total",
		Help: "Records upserted by sync type.",
	}, []string{"sync_type"})

	TokenRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ofsync_token_refreshes_total",
		Help: "Consent token refreshes by result (refreshed, expired, failed).",
	}, []string{"result"})

	OutboundRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ofsync_outbound_retries_total",
		Help: "Retries of outbound open finance calls by operation.",
	}, []string{"operation"})

	DutyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ofsync_duty_duration_seconds",
		Help:    "Duration of orchestrator duties.",
		Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"duty"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ofsync_events_published_total",
		Help: "Sync events handed to the downstream broker by outcome.",
	}, []string{"event", "status"})

	DBQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ofsync_db_query_duration_seconds",
		Help:    "Postgres statement latency by SQL verb and outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "status"})
)

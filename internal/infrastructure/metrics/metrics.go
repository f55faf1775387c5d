// Package metrics holds the Prometheus collectors of the referral services
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchDuration tracks how long a full summary fetch takes per source
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "referral_fetch_duration_seconds",
			Help:    "Time taken to fetch a referral summary",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"source"},
	)

	// NetworkFailures counts networks skipped during a fetch
	NetworkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_network_failures_total",
			Help: "Total number of per-network fetch failures that were degraded to empty results",
		},
		[]string{"source", "chain"},
	)

	// DroppedRecords counts individual logs dropped during a scan
	DroppedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_dropped_records_total",
			Help: "Total number of event logs dropped because they could not be decoded or timestamped",
		},
		[]string{"chain"},
	)

	// IndexerLatestBlock is the newest block reported by each indexing endpoint
	IndexerLatestBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "referral_indexer_latest_block",
			Help: "Latest block indexed by the indexing service",
		},
		[]string{"chain"},
	)

	// IndexerUp is 1 when the last liveness query of an indexing endpoint succeeded
	IndexerUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "referral_indexer_up",
			Help: "Whether the last liveness query against the indexing service succeeded",
		},
		[]string{"chain"},
	)

	// ActiveSessions is the number of live dashboard sessions
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "referral_active_sessions",
			Help: "Number of dashboard sessions currently held in memory",
		},
	)

	// StaleResults counts fetch results discarded because a newer fetch was issued
	StaleResults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_stale_results_total",
			Help: "Total number of fetch results discarded because a newer request superseded them",
		},
	)
)

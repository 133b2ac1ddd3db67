package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payflow_ingest_messages_total",
			Help: "Total number of queue messages received",
		},
		[]string{"source"},
	)

	DecodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payflow_ingest_decode_errors_total",
			Help: "Total number of payloads replaced by a synthetic error record",
		},
		[]string{"source"},
	)

	// Enrichment metrics
	EnrichmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payflow_enrichments_total",
			Help: "Total number of enrichment attempts by outcome",
		},
		[]string{"status"},
	)

	EnrichmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payflow_enrichment_duration_seconds",
			Help:    "Duration of enrichment including the sink write",
			Buckets: prometheus.DefBuckets,
		},
	)

	RiskScores = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payflow_enrichment_risk_scores_total",
			Help: "Enriched payments by risk score and fraud status",
		},
		[]string{"risk_score", "fraud_status"},
	)

	// Poller metrics
	PollCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payflow_poller_cycles_total",
			Help: "Total number of poll cycles by outcome",
		},
		[]string{"status"},
	)

	PolledRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payflow_poller_rows_total",
			Help: "Total number of transaction rows handled by outcome",
		},
		[]string{"status"},
	)

	PollDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payflow_poller_cycle_duration_seconds",
			Help:    "Duration of a poll cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Archive metrics
	ArchiveDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payflow_archive_dropped_total",
			Help: "Records not archived because the archive buffer was full",
		},
	)

	ArchiveFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payflow_archive_flushes_total",
			Help: "Archive batch flushes by outcome",
		},
		[]string{"status"},
	)
)

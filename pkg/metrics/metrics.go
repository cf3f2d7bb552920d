// Package metrics provides Prometheus metrics for the Sage service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsTotal tracks reconciliation jobs by terminal status
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "jobs",
			Name:      "total",
			Help:      "Total number of reconciliation jobs by terminal status",
		},
		[]string{"tenant_id", "type", "status"},
	)

	// JobDuration tracks job duration in seconds
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sage",
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Duration of reconciliation jobs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"tenant_id", "type"},
	)

	// JobsInFlight tracks jobs currently running
	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sage",
			Subsystem: "jobs",
			Name:      "in_flight",
			Help:      "Number of reconciliation jobs currently running",
		},
	)

	// MatchesTotal tracks scored matches by status band
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "matching",
			Name:      "matches_total",
			Help:      "Total number of scored matches by status",
		},
		[]string{"tenant_id", "status"},
	)

	// CandidatePairsTotal tracks candidate pairs produced by blocking
	CandidatePairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "matching",
			Name:      "candidate_pairs_total",
			Help:      "Total number of candidate pairs produced by blocking",
		},
		[]string{"tenant_id"},
	)

	// DedupMergesTotal tracks records merged into golden records
	DedupMergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "dedup",
			Name:      "merges_total",
			Help:      "Total number of records merged into golden records",
		},
		[]string{"tenant_id", "action"},
	)

	// ModelRefreshesTotal tracks model registry refreshes
	ModelRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "models",
			Name:      "refreshes_total",
			Help:      "Total number of model refresh attempts by outcome",
		},
		[]string{"model", "outcome"},
	)

	// ReviewsTotal tracks reviewer decisions on pending matches
	ReviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "review",
			Name:      "decisions_total",
			Help:      "Total number of review decisions",
		},
		[]string{"tenant_id", "decision"},
	)

	// IntakeRecordsTotal tracks dataset records ingested from Kafka
	IntakeRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sage",
			Subsystem: "intake",
			Name:      "records_total",
			Help:      "Total number of dataset records ingested by outcome",
		},
		[]string{"tenant_id", "outcome"},
	)
)

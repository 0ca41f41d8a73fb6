// Package obsv holds Memoric's Prometheus metrics, adapted from the
// teacher's promauto-based registration pattern but scoped to the core
// engine's own observability surface (policy-run phases, retrieval
// latency, store latency) rather than an HTTP layer.
package obsv

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PolicyPhaseTotal counts policy phase executions by phase and outcome.
	PolicyPhaseTotal *prometheus.CounterVec

	// PolicyPhaseDuration records phase latency in seconds.
	PolicyPhaseDuration *prometheus.HistogramVec

	// RecordsMigratedTotal counts records that changed tier.
	RecordsMigratedTotal *prometheus.CounterVec

	// RetrievalLatency records retrieve/retrieve_context latency in seconds.
	RetrievalLatency *prometheus.HistogramVec

	// RetrievalCandidatesTotal records how many candidates were scored per
	// retrieval before trimming to top_k.
	RetrievalCandidatesTotal prometheus.Histogram

	// StoreLatency records store-layer operation latency in seconds.
	StoreLatency *prometheus.HistogramVec
)

var initOnce sync.Once

// Init registers all Prometheus metrics with the given constant labels.
// Safe to call multiple times; only the first call registers.
func Init(constLabels prometheus.Labels) {
	initOnce.Do(func() {
		initInner(constLabels)
	})
}

func initInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	PolicyPhaseTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memoric_policy_phase_total",
			Help: "Total policy phase executions by phase and outcome",
		},
		[]string{"phase", "outcome"},
	)

	PolicyPhaseDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memoric_policy_phase_duration_seconds",
			Help:    "Policy phase duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	RecordsMigratedTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memoric_records_migrated_total",
			Help: "Total records that transitioned tier",
		},
		[]string{"from_tier", "to_tier"},
	)

	RetrievalLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memoric_retrieval_latency_seconds",
			Help:    "retrieve/retrieve_context latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	RetrievalCandidatesTotal = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "memoric_retrieval_candidates",
		Help:    "Number of candidates scored per retrieval before trimming to top_k",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
	})

	StoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memoric_store_latency_seconds",
			Help:    "Store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
}

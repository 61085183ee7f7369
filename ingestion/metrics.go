package ingestion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes recorded in runsTotal.
const (
	outcomeReady     = "ready"
	outcomeFailed    = "failed"
	outcomeDiscarded = "discarded"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicevault_pipeline_runs_total",
		Help: "Pipeline runs by outcome.",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicevault_pipeline_run_duration_seconds",
		Help:    "Wall time of completed pipeline runs.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
	})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voicevault_pipeline_stage_duration_seconds",
		Help:    "Wall time of individual pipeline stages.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"stage"})

	chunksEmbedded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicevault_pipeline_chunks_embedded_total",
		Help: "Chunks that received an embedding during a run.",
	})

	embeddingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicevault_pipeline_embedding_failures_total",
		Help: "Chunks left without an embedding because the embedder failed.",
	})
)

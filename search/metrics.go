package search

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicevault_search_total",
		Help: "Searches by ranking tier that produced the results.",
	}, []string{"mode"})

	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicevault_search_duration_seconds",
		Help:    "Search latency.",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicevault_search_query_cache_hits_total",
		Help: "Query embeddings served from cache.",
	})

	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicevault_search_query_cache_misses_total",
		Help: "Query embeddings computed by the embedder.",
	})
)

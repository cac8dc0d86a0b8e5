package internal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gridbase_actions_executed_total",
	Help: "The number of actions executed by type",
}, []string{"type"})

var RowsIngested = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gridbase_rows_ingested_total",
	Help: "The number of rows materialized into the query engine",
})

var QueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "gridbase_query_duration_seconds",
	Help:    "The duration of virtualized queries",
	Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
})

var DecryptFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gridbase_decrypt_failures_total",
	Help: "The number of field values that could not be decrypted",
})

var CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gridbase_cache_hits_total",
	Help: "The number of cache hits by cache name",
}, []string{"cache"})

var CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gridbase_cache_misses_total",
	Help: "The number of cache misses by cache name",
}, []string{"cache"})

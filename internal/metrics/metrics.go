// Package metrics exposes Prometheus instrumentation for the response
// cache, following the teacher's promauto-based metrics.go.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "httpcache_requests_total",
		Help: "The total number of requests seen by the cache transport, by HTTP method.",
	}, []string{"method"})

	HitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "httpcache_hits_total",
		Help: "The total number of cache hits.",
	})
	MissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "httpcache_misses_total",
		Help: "The total number of cache misses.",
	})

	HitBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "httpcache_hit_bytes_total",
		Help: "Amount of response body data served from cache.",
	})
	MissBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "httpcache_miss_bytes_total",
		Help: "Amount of response body data stored into cache.",
	})

	EvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "httpcache_evictions_total",
		Help: "The total number of entries evicted to satisfy the size bound.",
	})
	CorruptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "httpcache_corruptions_total",
		Help: "The total number of times the metadata database was found corrupt and recreated.",
	})

	CacheSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "httpcache_size_bytes",
		Help: "Current total size of cached response bodies, in bytes.",
	})
)

package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_bets_cache_hits_total",
		Help: "Total number of cache hits",
	})

	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_bets_cache_misses_total",
		Help: "Total number of cache misses",
	})

	CacheSetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "price_bets_cache_sets_total",
		Help: "Total number of cache sets by admission result",
	}, []string{"result"})

	CacheDeletesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_bets_cache_deletes_total",
		Help: "Total number of cache deletes",
	})

	CacheHitRatio = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "price_bets_cache_hit_ratio",
		Help: "Ristretto hit ratio since startup",
	})
)

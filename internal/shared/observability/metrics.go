package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	RegistryAdvertisements = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "yangkit_registry_advertisements",
		Help: "Number of potential sources currently advertised, by registry.",
	}, []string{"registry"})

	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yangkit_source_cache_hits_total",
		Help: "Total number of source cache lookups that found a live entry.",
	}, []string{"cache"})

	CacheMissesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yangkit_source_cache_misses_total",
		Help: "Total number of source cache lookups that found nothing.",
	}, []string{"cache"})

	CacheEvictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yangkit_source_cache_evictions_total",
		Help: "Total number of cache entries evicted, by reason.",
	}, []string{"cache", "reason"})

	ProviderFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yangkit_provider_fetch_total",
		Help: "Total number of provider fetch attempts, by outcome.",
	}, []string{"outcome"})

	ResolutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "yangkit_resolution_seconds",
		Help:    "Time spent building a schema context.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	ReactorPassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yangkit_reactor_passes_total",
		Help: "Total number of modifier passes executed, by phase.",
	}, []string{"phase"})

	PrunedStatementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yangkit_pruned_statements_total",
		Help: "Total number of statements removed by feature gating.",
	})

	PoolQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "yangkit_pool_queue_depth",
		Help: "Current number of tasks waiting for an executor worker.",
	}, []string{"pool"})

	PoolRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yangkit_pool_rejected_total",
		Help: "Total number of tasks rejected because the queue was full or closed.",
	}, []string{"pool"})

	DeadlocksDetectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yangkit_pool_deadlocks_detected_total",
		Help: "Total number of blocking waits refused on an executor's own worker.",
	}, []string{"pool"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yangkit_watcher_events_total",
		Help: "Total number of file system events received by the source watcher.",
	})

	StoreOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yangkit_store_operations_total",
		Help: "Total number of persistent source store operations, by kind.",
	}, []string{"store", "op"})

	PersistQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yangkit_persist_queue_depth",
		Help: "Current number of pending background persistence writes.",
	})

	PersistWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yangkit_persist_writes_total",
		Help: "Total number of background persistence writes, by target and outcome.",
	}, []string{"target", "outcome"})

	PersistFlushLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "yangkit_persist_flush_latency_seconds",
		Help:    "Latency of applying one batch of persistence writes.",
		Buckets: prometheus.DefBuckets,
	})
)

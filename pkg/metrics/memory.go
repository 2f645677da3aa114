package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initMemoryMetrics initializes memory operation, retrieval and consolidation metrics.
func (m *Manager) initMemoryMetrics(cfg Config) {
	m.memoryOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_operations_total",
			Help: "Total number of memory operations by operation, memory type and status",
		},
		[]string{"operation", "memory_type", "status"},
	)

	m.memoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memory_operation_duration_seconds",
			Help:    "Memory operation duration in seconds",
			Buckets: cfg.MemoryDurationBuckets,
		},
		[]string{"operation"},
	)

	m.strategyRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_retrieval_strategies_total",
			Help: "Total number of retrieval strategy executions by strategy and status",
		},
		[]string{"strategy", "status"},
	)

	m.consolidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_consolidations_total",
			Help: "Total number of working memory consolidations by status",
		},
		[]string{"status"},
	)

	m.consolidationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "memory_consolidation_duration_seconds",
			Help:    "Working memory consolidation duration in seconds",
			Buckets: cfg.ConsolidationDurationBuckets,
		},
	)

	m.workingMessages = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "working_memory_messages",
			Help: "Current number of messages held in working memory",
		},
	)

	m.registry.MustRegister(m.memoryOperations)
	m.registry.MustRegister(m.memoryDuration)
	m.registry.MustRegister(m.strategyRuns)
	m.registry.MustRegister(m.consolidations)
	m.registry.MustRegister(m.consolidationDuration)
	m.registry.MustRegister(m.workingMessages)
}

// RecordMemoryOperation records one store, retrieve or maintenance call.
func (m *Manager) RecordMemoryOperation(operation, memoryType string, duration time.Duration, err error) {
	if !m.enabled {
		return
	}
	if memoryType == "" {
		memoryType = "all"
	}
	m.memoryOperations.WithLabelValues(operation, memoryType, statusLabel(err)).Inc()
	m.memoryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRetrievalStrategy records one strategy of an agentic retrieval fan-out.
func (m *Manager) RecordRetrievalStrategy(strategy string, err error) {
	if !m.enabled {
		return
	}
	m.strategyRuns.WithLabelValues(strategy, statusLabel(err)).Inc()
}

// RecordConsolidation records a working memory consolidation pass.
func (m *Manager) RecordConsolidation(duration time.Duration, err error) {
	if !m.enabled {
		return
	}
	m.consolidations.WithLabelValues(statusLabel(err)).Inc()
	m.consolidationDuration.Observe(duration.Seconds())
}

// SetWorkingMessages sets the working memory size gauge.
func (m *Manager) SetWorkingMessages(n int) {
	if !m.enabled {
		return
	}
	m.workingMessages.Set(float64(n))
}

// RegisterCacheStats exports the hit rate and lookup count of a metadata cache.
// stats is sampled on every scrape.
func (m *Manager) RegisterCacheStats(name string, stats func() (rate float64, total int64)) error {
	if !m.enabled || stats == nil {
		return nil
	}
	labels := prometheus.Labels{"cache": name}
	hitRate := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name:        "metadata_cache_hit_ratio",
			Help:        "Ratio of cache lookups served from memory",
			ConstLabels: labels,
		},
		func() float64 {
			rate, _ := stats()
			return rate
		},
	)
	lookups := prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name:        "metadata_cache_lookups_total",
			Help:        "Total number of cache lookups",
			ConstLabels: labels,
		},
		func() float64 {
			_, total := stats()
			return float64(total)
		},
	)
	if err := m.registry.Register(hitRate); err != nil {
		return err
	}
	return m.registry.Register(lookups)
}

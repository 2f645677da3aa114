package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initEmbeddingMetrics initializes embedding provider metrics.
func (m *Manager) initEmbeddingMetrics(cfg Config) {
	m.embeddingRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_requests_total",
			Help: "Total number of embedding requests by provider and status",
		},
		[]string{"provider", "status"},
	)

	m.embeddingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embedding_request_duration_seconds",
			Help:    "Embedding request duration in seconds",
			Buckets: cfg.EmbeddingDurationBuckets,
		},
		[]string{"provider"},
	)

	m.registry.MustRegister(m.embeddingRequests)
	m.registry.MustRegister(m.embeddingDuration)
}

// RecordEmbedding records one call to an embedding provider.
func (m *Manager) RecordEmbedding(provider string, duration time.Duration, err error) {
	if !m.enabled {
		return
	}
	m.embeddingRequests.WithLabelValues(provider, statusLabel(err)).Inc()
	m.embeddingDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

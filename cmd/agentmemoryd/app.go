package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goclaw/agentmemory/config"
	"github.com/goclaw/agentmemory/pkg/agentmemory"
	"github.com/goclaw/agentmemory/pkg/api"
	"github.com/goclaw/agentmemory/pkg/api/handlers"
	"github.com/goclaw/agentmemory/pkg/api/middleware"
	"github.com/goclaw/agentmemory/pkg/embedding"
	"github.com/goclaw/agentmemory/pkg/engine"
	"github.com/goclaw/agentmemory/pkg/logger"
	"github.com/goclaw/agentmemory/pkg/metrics"
	"github.com/goclaw/agentmemory/pkg/storage"
	"github.com/goclaw/agentmemory/pkg/storage/cache"
	"github.com/goclaw/agentmemory/pkg/storage/factory"
)

const readinessProbeID = "__readiness_probe__"

// app is the wired service graph.
type app struct {
	metrics     *metrics.Manager
	metadata    storage.MetadataStorage
	memory      *agentmemory.AgentMemory
	manager     *engine.AgenticMemoryManager
	health      *handlers.HealthHandler
	rateLimiter *middleware.RateLimiter
	server      *api.HTTPServer
}

// buildApp opens the embedding provider and both stores and wires them into
// the facade, the agentic manager and the HTTP server. On error every
// resource opened so far is closed.
func buildApp(ctx context.Context, cfg *config.Config, log logger.Logger) (a *app, err error) {
	a = &app{}

	a.metrics = metrics.NewManager(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Port:    cfg.Metrics.Port,
		Path:    cfg.Metrics.Path,
	})

	provider, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	if provider.Name() == embedding.ProviderLocal {
		log.Warn("Using the local hash embedder; similarity is lexical only and not suitable for production")
	}
	embedder := embedding.NewInstrumented(provider, a.metrics)

	metadata, err := factory.NewMetadataStorage(ctx, cfg.Storage.Metadata)
	if err != nil {
		return nil, fmt.Errorf("metadata storage: %w", err)
	}
	// The factory puts the LRU in front of the backend when cache_size > 0.
	if cached, ok := metadata.(*cache.MetadataStore); ok {
		if err := a.metrics.RegisterCacheStats(cfg.Storage.Metadata.Type, cached.Stats().HitRate); err != nil {
			log.Warn("Failed to register cache metrics", "error", err)
		}
	}
	a.metadata = metadata

	vectors, err := factory.NewVectorStorage(ctx, cfg.Storage.Vector, embedder.Dimension())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("vector storage: %w", err), metadata.Close())
	}

	a.memory, err = agentmemory.New(embedder, vectors, metadata, agentmemory.Config{
		AgentID:             cfg.Memory.AgentID,
		UserID:              cfg.Memory.UserID,
		MaxResults:          cfg.Limits.MaxRetrievalResults,
		SimilarityThreshold: cfg.Limits.SimilarityThreshold,
	},
		agentmemory.WithLogger(log.With("component", "agentmemory")),
		agentmemory.WithRecorder(a.metrics),
	)
	if err != nil {
		return nil, errors.Join(err, vectors.Close(), metadata.Close())
	}

	a.manager = engine.NewAgenticMemoryManager(embedder, engine.Config{
		MaxWorkingMessages:    cfg.Limits.MaxWorkingMemoryMessages,
		WorkingTokenBudget:    cfg.Memory.WorkingTokenBudget,
		SimilarityThreshold:   cfg.Limits.SimilarityThreshold,
		ImportanceThreshold:   cfg.Limits.ImportanceThreshold,
		ConsolidationInterval: cfg.Limits.ConsolidationInterval(),
		ConsolidationEnabled:  cfg.Memory.ConsolidationEnabled,
	},
		engine.WithLogger(log.With("component", "engine")),
		engine.WithRecorder(a.metrics),
	)

	a.health = handlers.NewHealthHandler()
	a.health.AddCheck("metadata", func(ctx context.Context) error {
		_, _, err := metadata.GetMetadata(ctx, readinessProbeID)
		return err
	})

	h := &api.Handlers{
		Memory:  handlers.NewMemoryHandler(a.memory, log.With("component", "api")),
		Agentic: handlers.NewAgenticHandler(a.manager, cfg.Memory.UserID, log.With("component", "api")),
		Health:  a.health,
	}
	if a.metrics.Enabled() {
		h.Metrics = a.metrics
		if cfg.Metrics.Port == 0 {
			h.MetricsHandler = a.metrics.Handler()
		}
	}
	if cfg.Server.RateLimit.Enabled {
		a.rateLimiter = middleware.NewRateLimiter(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst)
		h.RateLimiter = a.rateLimiter
	}

	a.server = api.NewHTTPServer(cfg, log, h)
	return a, nil
}

// applyHotReload pushes the reloadable settings of cfg into the running app.
func (a *app) applyHotReload(log logger.Logger, prev, next config.HotReloadableConfig) {
	if next.LogLevel != prev.LogLevel {
		log.SetLevel(logger.ParseLevel(next.LogLevel))
		log.Info("Log level changed", "level", next.LogLevel)
	}
	if next.ConsolidationEnabled != prev.ConsolidationEnabled {
		a.manager.SetConsolidationEnabled(next.ConsolidationEnabled)
		log.Info("Consolidation toggled", "enabled", next.ConsolidationEnabled)
	}
}

// pruneClients drops idle rate-limiter entries until ctx is done.
func (a *app) pruneClients(ctx context.Context, log logger.Logger, every time.Duration) {
	if a.rateLimiter == nil {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.rateLimiter.Prune(every); n > 0 {
				log.Debug("Pruned idle rate limiter clients", "removed", n)
			}
		}
	}
}

// close releases the stores.
func (a *app) close() error {
	return a.memory.Close()
}

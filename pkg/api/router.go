// Package api provides HTTP API server components.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/goclaw/agentmemory/config"
	"github.com/goclaw/agentmemory/pkg/api/handlers"
	"github.com/goclaw/agentmemory/pkg/api/middleware"
	"github.com/goclaw/agentmemory/pkg/logger"
)

const defaultMetricsPath = "/metrics"

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Memory handles the agent-layer memory facade endpoints
	Memory *handlers.MemoryHandler

	// Agentic handles the multi-engine manager endpoints
	Agentic *handlers.AgenticHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder

	// MetricsHandler serves the Prometheus scrape endpoint on the API port.
	// It is nil when metrics run on a dedicated port.
	MetricsHandler http.Handler

	// RateLimiter throttles clients when set
	RateLimiter *middleware.RateLimiter
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, h *Handlers) chi.Router {
	r := chi.NewRouter()

	// Register global middleware
	r.Use(middleware.RequestID())
	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	}
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	// Add metrics middleware if provided
	if h.Metrics != nil {
		r.Use(middleware.Metrics(h.Metrics))
	}
	if h.RateLimiter != nil {
		r.Use(middleware.RateLimit(h.RateLimiter))
	}

	r.Use(middleware.CORS(&cfg.Server.CORS))
	r.Use(middleware.Timeout(cfg.Server.HTTP.RequestTimeout))

	// Register routes
	RegisterRoutes(r, h)

	if h.MetricsHandler != nil {
		path := cfg.Metrics.Path
		if path == "" {
			path = defaultMetricsPath
		}
		r.Method(http.MethodGet, path, h.MetricsHandler)
	}

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, h *Handlers) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		if h.Memory != nil {
			r.Route("/memories", func(r chi.Router) {
				r.Post("/", h.Memory.StoreMemory)
				r.Post("/search", h.Memory.SearchMemories)
				r.Get("/agent", h.Memory.GetAgentMemories)
				r.Get("/user", h.Memory.GetUserMemories)
				r.Get("/{id}", h.Memory.GetMemory)
				r.Delete("/{id}", h.Memory.DeleteMemory)
				r.Put("/{id}/relevance", h.Memory.UpdateRelevance)
			})
		}

		if h.Agentic != nil {
			r.Route("/agentic", func(r chi.Router) {
				r.Post("/store", h.Agentic.Store)
				r.Post("/retrieve", h.Agentic.Retrieve)
				r.Post("/context", h.Agentic.Context)
				r.Post("/consolidate", h.Agentic.Consolidate)
			})
		}
	})

	// Health check routes (not versioned)
	if h.Health != nil {
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/status", h.Health.Status)
	}
}

package config

import "time"

// Provider-specific embedding defaults.
const (
	DefaultOpenAIModel     = "text-embedding-3-small"
	DefaultOpenAIDimension = 1536
	DefaultOpenAIBaseURL   = "https://api.openai.com/v1"

	DefaultOllamaModel     = "all-minilm"
	DefaultOllamaDimension = 384
	DefaultOllamaBaseURL   = "http://localhost:11434"

	DefaultLocalDimension  = 384
	DefaultCustomDimension = 1536
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "agentmemory",
			Version:     "dev",
			Environment: "development",
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			HTTP: HTTPConfig{
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    60 * time.Second,
				IdleTimeout:     120 * time.Second,
				ShutdownTimeout: 15 * time.Second,
				RequestTimeout:  45 * time.Second,
				MaxHeaderBytes:  1 << 20, // 1MB
			},
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
				ExposedHeaders: []string{"X-Request-ID"},
				MaxAge:         300,
			},
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerSecond: 50,
				Burst:             100,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    0,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlp",
			Endpoint:   "localhost:4317",
			Timeout:    5 * time.Second,
			Sampler:    "ratio",
			SampleRate: 0.1,
		},
		Embedding: EmbeddingConfig{
			Provider:          "local",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 0,
			Burst:             1,
			Custom: CustomEmbeddingConfig{
				TextField:     "text",
				ResponseField: "embedding",
			},
		},
		Storage: StorageConfig{
			Metadata: MetadataStorageConfig{
				Type:      "sqlite",
				CacheSize: 1000,
				SQLite: SQLiteConfig{
					Path: "./memory.db",
				},
				Postgres: PostgresConfig{
					MaxOpenConns: 10,
				},
				Badger: BadgerConfig{
					Path:              "./data/badger",
					SyncWrites:        true,
					ValueLogFileSize:  1 << 28, // 256MB
					NumVersionsToKeep: 1,
				},
				Redis: RedisConfig{
					Address: "localhost:6379",
					Prefix:  "agentmemory:",
				},
			},
			Vector: VectorStorageConfig{
				Type: "memory",
				Chromem: ChromemConfig{
					Collection: "memory",
				},
				Qdrant: QdrantConfig{
					URL:        "http://localhost:6333",
					Collection: "memory",
					Timeout:    10 * time.Second,
				},
			},
		},
		Limits: LimitsConfig{
			MaxWorkingMemoryMessages:   50,
			MaxRetrievalResults:        10,
			SimilarityThreshold:        0.7,
			ImportanceThreshold:        0.3,
			ConsolidationIntervalHours: 1,
		},
		Memory: MemoryConfig{
			AgentID:              "default_agent",
			WorkingTokenBudget:   4000,
			ConsolidationEnabled: true,
		},
	}
}

// ResolveEmbedding fills provider-specific defaults for model, dimension and
// base URL when they are unset.
func (e EmbeddingConfig) ResolveEmbedding() EmbeddingConfig {
	switch e.Provider {
	case "openai", "openai_compatible":
		if e.Model == "" {
			e.Model = DefaultOpenAIModel
		}
		if e.Dimension == 0 {
			e.Dimension = DefaultOpenAIDimension
		}
		if e.BaseURL == "" {
			e.BaseURL = DefaultOpenAIBaseURL
		}
	case "ollama":
		if e.Model == "" {
			e.Model = DefaultOllamaModel
		}
		if e.Dimension == 0 {
			e.Dimension = DefaultOllamaDimension
		}
		if e.BaseURL == "" {
			e.BaseURL = DefaultOllamaBaseURL
		}
	case "custom":
		if e.Dimension == 0 {
			e.Dimension = DefaultCustomDimension
		}
	case "local":
		if e.Dimension == 0 {
			e.Dimension = DefaultLocalDimension
		}
	}
	return e
}

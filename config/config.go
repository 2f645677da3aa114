// Package config provides configuration management for the agent memory daemon.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the HTTP server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Metrics is the Prometheus configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the OpenTelemetry configuration.
	Tracing TracingConfig `mapstructure:"tracing"`

	// Embedding selects and configures the embedding provider.
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	// Storage selects the metadata and vector backends.
	Storage StorageConfig `mapstructure:"storage"`

	// Limits bounds memory sizes and retrieval.
	Limits LimitsConfig `mapstructure:"limits"`

	// Memory configures the facade identity and the agentic manager.
	Memory MemoryConfig `mapstructure:"memory"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"env"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// HTTP is the HTTP server configuration.
	HTTP HTTPConfig `mapstructure:"http"`

	// CORS is the CORS configuration.
	CORS CORSConfig `mapstructure:"cors"`

	// RateLimit throttles API clients by remote address.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig holds per-client token bucket settings.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`
	Burst             int     `mapstructure:"burst" validate:"min=0"`
}

// HTTPConfig holds HTTP-specific settings.
type HTTPConfig struct {
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RequestTimeout bounds a single request, embedding calls included.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is a comma-separated list of sinks: stdout, stderr or file paths.
	Output string `mapstructure:"output"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the dedicated metrics server port. Zero serves metrics on the API port.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the exporter kind (otlp).
	Exporter string `mapstructure:"exporter" validate:"omitempty,oneof=otlp"`

	// Endpoint is the OTLP gRPC collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Timeout bounds one export.
	Timeout time.Duration `mapstructure:"timeout"`

	// Headers are sent with every export.
	Headers map[string]string `mapstructure:"headers"`

	// Sampler is always_on, always_off or ratio.
	Sampler string `mapstructure:"sampler" validate:"omitempty,oneof=always_on always_off ratio"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	// Provider is openai, openai_compatible, ollama, custom or local.
	Provider string `mapstructure:"provider" validate:"oneof=openai openai_compatible ollama custom local"`

	// Model is the embedding model name. Empty selects the provider default.
	Model string `mapstructure:"model"`

	// Dimension is the vector length. Zero selects the provider default.
	Dimension int `mapstructure:"dimension" validate:"min=0"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `mapstructure:"base_url"`

	// APIKey authenticates against remote providers.
	APIKey string `mapstructure:"api_key"`

	// Timeout bounds one embedding request.
	Timeout time.Duration `mapstructure:"timeout"`

	// RequestsPerSecond throttles remote providers. Zero disables throttling.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`

	// Burst is the limiter burst size.
	Burst int `mapstructure:"burst" validate:"min=0"`

	// Custom configures the custom HTTP provider.
	Custom CustomEmbeddingConfig `mapstructure:"custom"`
}

// CustomEmbeddingConfig configures a user-supplied HTTP embedding service.
type CustomEmbeddingConfig struct {
	URL           string            `mapstructure:"url"`
	Headers       map[string]string `mapstructure:"headers"`
	TextField     string            `mapstructure:"text_field"`
	ResponseField string            `mapstructure:"response_field"`
	OpenAIFormat  bool              `mapstructure:"openai_format"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	Metadata MetadataStorageConfig `mapstructure:"metadata"`
	Vector   VectorStorageConfig   `mapstructure:"vector"`
}

// MetadataStorageConfig selects the metadata backend.
type MetadataStorageConfig struct {
	// Type is the backend (sqlite, postgres, badger, redis, memory).
	Type string `mapstructure:"type" validate:"oneof=sqlite postgres badger redis memory"`

	// CacheSize enables an LRU in front of the backend. Zero disables it.
	CacheSize int `mapstructure:"cache_size" validate:"min=0"`

	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Badger   BadgerConfig   `mapstructure:"badger"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig holds PostgreSQL settings.
type PostgresConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"min=0"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum size of value log files in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size"`

	// NumVersionsToKeep is the number of versions to keep per key.
	NumVersionsToKeep int `mapstructure:"num_versions_to_keep"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db"`

	// Prefix namespaces every key.
	Prefix string `mapstructure:"prefix"`
}

// VectorStorageConfig selects the vector backend.
type VectorStorageConfig struct {
	// Type is the backend (memory, chromem, qdrant).
	Type string `mapstructure:"type" validate:"oneof=memory chromem qdrant"`

	Memory  MemoryVectorConfig `mapstructure:"memory"`
	Chromem ChromemConfig      `mapstructure:"chromem"`
	Qdrant  QdrantConfig       `mapstructure:"qdrant"`
}

// MemoryVectorConfig holds in-process vector index settings.
type MemoryVectorConfig struct {
	// SnapshotPath, when set, is loaded on start and written on close.
	SnapshotPath string `mapstructure:"snapshot_path"`
}

// ChromemConfig holds chromem-go settings.
type ChromemConfig struct {
	// Path enables persistence when set.
	Path       string `mapstructure:"path"`
	Compress   bool   `mapstructure:"compress"`
	Collection string `mapstructure:"collection"`
}

// QdrantConfig holds Qdrant settings.
type QdrantConfig struct {
	URL        string        `mapstructure:"url"`
	Collection string        `mapstructure:"collection"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// LimitsConfig bounds memory sizes and retrieval.
type LimitsConfig struct {
	MaxWorkingMemoryMessages   int     `mapstructure:"max_working_memory_messages" validate:"min=1"`
	MaxRetrievalResults        int     `mapstructure:"max_retrieval_results" validate:"min=1"`
	SimilarityThreshold        float64 `mapstructure:"similarity_threshold" validate:"min=-1,max=1"`
	ImportanceThreshold        float64 `mapstructure:"importance_threshold" validate:"min=0,max=1"`
	ConsolidationIntervalHours float64 `mapstructure:"consolidation_interval_hours" validate:"min=0"`
}

// MemoryConfig configures the facade identity and the agentic manager.
type MemoryConfig struct {
	// AgentID owns every entry the daemon stores.
	AgentID string `mapstructure:"agent_id" validate:"required"`

	// UserID, when set, scopes searches and episodic memory to one user.
	UserID string `mapstructure:"user_id"`

	// WorkingTokenBudget caps the working buffer's estimated token count.
	WorkingTokenBudget int `mapstructure:"working_token_budget" validate:"min=1"`

	// ConsolidationEnabled lets the manager fold working context into
	// episodic memory.
	ConsolidationEnabled bool `mapstructure:"consolidation_enabled"`
}

// ConsolidationInterval returns the limit as a duration.
func (l LimitsConfig) ConsolidationInterval() time.Duration {
	return time.Duration(l.ConsolidationIntervalHours * float64(time.Hour))
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s, Embedding: %s, Metadata: %s, Vector: %s}",
		c.App.Name, c.Server.Port, c.App.Environment,
		c.Embedding.Provider, c.Storage.Metadata.Type, c.Storage.Vector.Type)
}

// Package factory builds storage backends from configuration.
package factory

import (
	"context"
	"fmt"

	"github.com/goclaw/agentmemory/config"
	"github.com/goclaw/agentmemory/pkg/storage"
	"github.com/goclaw/agentmemory/pkg/storage/badger"
	"github.com/goclaw/agentmemory/pkg/storage/cache"
	"github.com/goclaw/agentmemory/pkg/storage/chromem"
	memstore "github.com/goclaw/agentmemory/pkg/storage/memory"
	"github.com/goclaw/agentmemory/pkg/storage/qdrant"
	"github.com/goclaw/agentmemory/pkg/storage/redis"
	"github.com/goclaw/agentmemory/pkg/storage/sqlstore"
)

// Metadata backend names accepted by NewMetadataStorage.
const (
	MetadataSQLite   = "sqlite"
	MetadataPostgres = "postgres"
	MetadataBadger   = "badger"
	MetadataRedis    = "redis"
	MetadataMemory   = "memory"
)

// Vector backend names accepted by NewVectorStorage.
const (
	VectorMemory  = "memory"
	VectorChromem = "chromem"
	VectorQdrant  = "qdrant"
)

// NewMetadataStorage opens the configured metadata backend. A positive
// CacheSize wraps it in an LRU.
func NewMetadataStorage(ctx context.Context, cfg config.MetadataStorageConfig) (storage.MetadataStorage, error) {
	var (
		store storage.MetadataStorage
		err   error
	)

	switch cfg.Type {
	case MetadataSQLite:
		store, err = sqlstore.Open(ctx, sqlstore.Config{
			Dialect: sqlstore.SQLite,
			DSN:     cfg.SQLite.Path,
		})
	case MetadataPostgres:
		store, err = sqlstore.Open(ctx, sqlstore.Config{
			Dialect:      sqlstore.Postgres,
			DSN:          cfg.Postgres.DSN,
			MaxOpenConns: cfg.Postgres.MaxOpenConns,
		})
	case MetadataBadger:
		store, err = badger.NewMetadataStore(&badger.Config{
			Path:              cfg.Badger.Path,
			SyncWrites:        cfg.Badger.SyncWrites,
			ValueLogFileSize:  cfg.Badger.ValueLogFileSize,
			NumVersionsToKeep: cfg.Badger.NumVersionsToKeep,
		})
	case MetadataRedis:
		rc := redis.DefaultConfig()
		rc.Addr = cfg.Redis.Address
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		if cfg.Redis.Prefix != "" {
			rc.KeyPrefix = cfg.Redis.Prefix
		}
		store, err = redis.New(ctx, rc)
	case MetadataMemory:
		store = memstore.NewMetadataStore()
	default:
		return nil, storage.ConfigError("factory", "metadata", fmt.Errorf("unknown metadata storage type %q", cfg.Type))
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize > 0 {
		return cache.Wrap(store, cfg.CacheSize), nil
	}
	return store, nil
}

// NewVectorStorage opens the configured vector backend for vectors of the
// given dimension.
func NewVectorStorage(ctx context.Context, cfg config.VectorStorageConfig, dimension int) (storage.VectorStorage, error) {
	switch cfg.Type {
	case VectorMemory:
		return memstore.OpenVectorIndex(dimension, cfg.Memory.SnapshotPath)
	case VectorChromem:
		return chromem.New(chromem.Config{
			Path:       cfg.Chromem.Path,
			Compress:   cfg.Chromem.Compress,
			Collection: cfg.Chromem.Collection,
			Dimension:  dimension,
		})
	case VectorQdrant:
		return qdrant.New(ctx, qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Dimension:  dimension,
			Timeout:    cfg.Qdrant.Timeout,
		})
	default:
		return nil, storage.ConfigError("factory", "vector", fmt.Errorf("unknown vector storage type %q", cfg.Type))
	}
}

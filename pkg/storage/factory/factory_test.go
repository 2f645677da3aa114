package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/agentmemory/config"
	"github.com/goclaw/agentmemory/pkg/memory"
	"github.com/goclaw/agentmemory/pkg/storage"
	"github.com/goclaw/agentmemory/pkg/storage/badger"
	"github.com/goclaw/agentmemory/pkg/storage/cache"
	"github.com/goclaw/agentmemory/pkg/storage/chromem"
	memstore "github.com/goclaw/agentmemory/pkg/storage/memory"
	"github.com/goclaw/agentmemory/pkg/storage/sqlstore"
)

func TestNewMetadataStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name  string
		cfg   config.MetadataStorageConfig
		check func(t *testing.T, s storage.MetadataStorage)
	}{
		{
			name: "sqlite",
			cfg: config.MetadataStorageConfig{
				Type:   MetadataSQLite,
				SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "memory.db")},
			},
			check: func(t *testing.T, s storage.MetadataStorage) {
				assert.IsType(t, &sqlstore.Store{}, s)
			},
		},
		{
			name: "badger",
			cfg: config.MetadataStorageConfig{
				Type:   MetadataBadger,
				Badger: config.BadgerConfig{Path: filepath.Join(dir, "badger")},
			},
			check: func(t *testing.T, s storage.MetadataStorage) {
				assert.IsType(t, &badger.MetadataStore{}, s)
			},
		},
		{
			name: "memory",
			cfg:  config.MetadataStorageConfig{Type: MetadataMemory},
			check: func(t *testing.T, s storage.MetadataStorage) {
				assert.IsType(t, &memstore.MetadataStore{}, s)
			},
		},
		{
			name: "memory with cache",
			cfg:  config.MetadataStorageConfig{Type: MetadataMemory, CacheSize: 16},
			check: func(t *testing.T, s storage.MetadataStorage) {
				assert.IsType(t, &cache.MetadataStore{}, s)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewMetadataStorage(ctx, tt.cfg)
			require.NoError(t, err)
			defer s.Close()
			tt.check(t, s)

			entry := memory.NewEntry("factory round trip", memory.Semantic)
			require.NoError(t, s.StoreMetadata(ctx, entry))
			got, found, err := s.GetMetadata(ctx, entry.ID)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, entry.Content, got.Content)
		})
	}
}

func TestNewMetadataStorage_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  config.MetadataStorageConfig
	}{
		{name: "unknown type", cfg: config.MetadataStorageConfig{Type: "cassandra"}},
		{name: "sqlite without path", cfg: config.MetadataStorageConfig{Type: MetadataSQLite}},
		{name: "postgres without dsn", cfg: config.MetadataStorageConfig{Type: MetadataPostgres}},
		{name: "badger without path", cfg: config.MetadataStorageConfig{Type: MetadataBadger}},
		{name: "redis without address", cfg: config.MetadataStorageConfig{Type: MetadataRedis}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMetadataStorage(ctx, tt.cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, storage.ErrConfig)
		})
	}
}

func TestNewVectorStorage(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("memory", func(t *testing.T) {
		s, err := NewVectorStorage(ctx, config.VectorStorageConfig{Type: VectorMemory}, 3)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &memstore.VectorIndex{}, s)
	})

	t.Run("memory with snapshot", func(t *testing.T) {
		cfg := config.VectorStorageConfig{
			Type:   VectorMemory,
			Memory: config.MemoryVectorConfig{SnapshotPath: filepath.Join(dir, "vectors.bin")},
		}
		s, err := NewVectorStorage(ctx, cfg, 3)
		require.NoError(t, err)
		require.NoError(t, s.StoreVector(ctx, "a", []float32{1, 0, 0}, nil))
		require.NoError(t, s.Close())

		reopened, err := NewVectorStorage(ctx, cfg, 3)
		require.NoError(t, err)
		defer reopened.Close()
		vec, found, err := reopened.GetVector(ctx, "a")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []float32{1, 0, 0}, vec)
	})

	t.Run("chromem", func(t *testing.T) {
		s, err := NewVectorStorage(ctx, config.VectorStorageConfig{Type: VectorChromem}, 3)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &chromem.Store{}, s)
	})

	t.Run("qdrant without url", func(t *testing.T) {
		_, err := NewVectorStorage(ctx, config.VectorStorageConfig{Type: VectorQdrant}, 3)
		assert.ErrorIs(t, err, storage.ErrConfig)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewVectorStorage(ctx, config.VectorStorageConfig{Type: "faiss"}, 3)
		assert.ErrorIs(t, err, storage.ErrConfig)
	})
}

package chromem

import (
	"context"
	"testing"

	"github.com/goclaw/agentmemory/pkg/memory"
	"github.com/goclaw/agentmemory/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSuite(t *testing.T) {
	suite := &storage.VectorStorageSuite{
		NewStorage: func(t *testing.T) storage.VectorStorage {
			s, err := New(Config{Dimension: 3})
			require.NoError(t, err)
			return s
		},
	}
	suite.RunAllTests(t)
}

func TestStore_Persistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := New(Config{Path: dir, Collection: "test", Dimension: 3})
	require.NoError(t, err)
	require.NoError(t, s.StoreVector(ctx, "a", []float32{0, 3, 4}, map[string]string{"k": "v"}))
	require.NoError(t, s.Close())

	reopened, err := New(Config{Path: dir, Collection: "test", Dimension: 3})
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 1, reopened.Count())
	matches, err := reopened.SearchVectors(ctx, []float32{0, 3, 4}, 5, 0.9)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "v", matches[0].Metadata["k"])
}

func TestStore_DimensionChecks(t *testing.T) {
	s, err := New(Config{Dimension: 3})
	require.NoError(t, err)
	ctx := context.Background()

	err = s.StoreVector(ctx, "bad", []float32{1, 0}, nil)
	assert.ErrorIs(t, err, memory.ErrDimensionMismatch)
	assert.ErrorIs(t, err, storage.ErrVector)

	require.NoError(t, s.StoreVector(ctx, "a", []float32{1, 0, 0}, nil))
	matches, err := s.SearchVectors(ctx, []float32{1, 0}, 5, -1)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStore_EmptyCollection(t *testing.T) {
	s, err := New(Config{Dimension: 3})
	require.NoError(t, err)

	matches, err := s.SearchVectors(context.Background(), []float32{1, 0, 0}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

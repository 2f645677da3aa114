package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/goclaw/agentmemory/pkg/memory"
	"github.com/goclaw/agentmemory/pkg/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv("AGENTMEMORY_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  500 * time.Millisecond,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis is not available at %s: %v", addr, err)
	}

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func uniqueKeyPrefix(prefix string) string {
	return fmt.Sprintf("agentmemory:test:%s:%d:", prefix, time.Now().UnixNano())
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	client := requireRedisClient(t)
	prefix := uniqueKeyPrefix(t.Name())
	t.Cleanup(func() {
		ctx := context.Background()
		keys, err := client.Keys(ctx, prefix+"*").Result()
		if err == nil && len(keys) > 0 {
			client.Del(ctx, keys...)
		}
	})
	return NewWithClient(client, prefix)
}

func TestStoreSuite(t *testing.T) {
	suite := &storage.MetadataStorageSuite{
		NewStorage: func(t *testing.T) storage.MetadataStorage {
			return newTestStore(t)
		},
	}
	suite.RunAllTests(t)
}

func TestStore_DeleteRemovesIndexes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := memory.NewEntry("indexed", memory.Episodic).WithMetadata(memory.MetaUserID, "u1")
	require.NoError(t, s.StoreMetadata(ctx, entry))
	require.NoError(t, s.DeleteMetadata(ctx, entry.ID))

	for _, key := range []string{s.allKey(), s.typeKey(memory.Episodic), s.userKey("u1")} {
		n, err := s.client.ZCard(ctx, key).Result()
		require.NoError(t, err)
		assert.Zero(t, n, key)
	}
}

func TestScore_SubMillisecond(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	older := memory.NewEntry("older", memory.Working)
	older.Timestamp = base.Add(100 * time.Microsecond)
	newer := memory.NewEntry("newer", memory.Working)
	newer.Timestamp = base.Add(400 * time.Microsecond)

	assert.Greater(t, score(newer), score(older))
	assert.Equal(t, float64(newer.Timestamp.UnixMicro()), score(newer))
}

func TestStore_SameMillisecondMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Truncate(time.Millisecond)
	// IDs sort opposite to creation time so a tie on score would surface
	// the older entry first.
	older := memory.NewEntry("older", memory.Semantic)
	older.ID = "zzz-older"
	older.Timestamp = base.Add(200 * time.Microsecond)
	newer := memory.NewEntry("newer", memory.Semantic)
	newer.ID = "aaa-newer"
	newer.Timestamp = base.Add(700 * time.Microsecond)

	require.NoError(t, s.StoreMetadata(ctx, older))
	require.NoError(t, s.StoreMetadata(ctx, newer))

	got, err := s.ListByType(ctx, memory.Semantic, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, newer.ID, got[0].ID)
}

func TestNew_RequiresAddr(t *testing.T) {
	_, err := New(context.Background(), &Config{})
	assert.ErrorIs(t, err, storage.ErrConfig)
}

func TestStore_KeyLayout(t *testing.T) {
	s := NewWithClient(nil, "am:")
	assert.Equal(t, "am:entry:x", s.entryKey("x"))
	assert.Equal(t, "am:type:Semantic", s.typeKey(memory.Semantic))
	assert.Equal(t, "am:user:u1", s.userKey("u1"))

	entry := memory.NewEntry("c", memory.Working)
	assert.Equal(t, []string{"am:all", "am:type:Working"}, s.indexKeys(entry))
	entry.WithMetadata(memory.MetaUserID, "u2")
	assert.Equal(t, []string{"am:all", "am:type:Working", "am:user:u2"}, s.indexKeys(entry))

	// Close on a borrowed client is a no-op.
	assert.NoError(t, s.Close())
}

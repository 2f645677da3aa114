// Package redis implements storage.MetadataStorage on Redis.
//
// Entries are JSON strings under {prefix}entry:{id}. Sorted sets scored by
// timestamp index every entry ({prefix}all), entries per kind
// ({prefix}type:{type}) and entries per user ({prefix}user:{user}).
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/goclaw/agentmemory/pkg/memory"
	"github.com/goclaw/agentmemory/pkg/storage"
	"github.com/redis/go-redis/v9"
)

const backend = "redis"

// Config holds configuration for a Redis-backed store.
type Config struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces every key written by the store.
	KeyPrefix string

	DialTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:        "127.0.0.1:6379",
		KeyPrefix:   "agentmemory:",
		DialTimeout: 2 * time.Second,
	}
}

// Store implements storage.MetadataStorage.
type Store struct {
	client redis.Cmdable
	closer io.Closer
	prefix string
}

var _ storage.MetadataStorage = (*Store)(nil)

// New dials Redis and returns a store that owns the client.
func New(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil || cfg.Addr == "" {
		return nil, storage.ConfigError(backend, "open", errors.New("addr is required"))
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, storage.ConnectionError(backend, "ping", err)
	}
	s := NewWithClient(client, cfg.KeyPrefix)
	s.closer = client
	return s, nil
}

// NewWithClient wraps an existing client. Close leaves the client open.
func NewWithClient(client redis.Cmdable, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) entryKey(id string) string {
	return s.prefix + "entry:" + id
}

func (s *Store) allKey() string {
	return s.prefix + "all"
}

func (s *Store) typeKey(memoryType memory.MemoryType) string {
	return fmt.Sprintf("%stype:%s", s.prefix, memoryType)
}

func (s *Store) userKey(userID string) string {
	return s.prefix + "user:" + userID
}

func (s *Store) indexKeys(entry *memory.MemoryEntry) []string {
	keys := []string{s.allKey(), s.typeKey(entry.MemoryType)}
	if user := entry.UserID(); user != "" {
		keys = append(keys, s.userKey(user))
	}
	return keys
}

// score orders index members by creation time. Microseconds stay exact in a
// float64 and keep entries written in the same millisecond apart.
func score(entry *memory.MemoryEntry) float64 {
	return float64(entry.Timestamp.UnixMicro())
}

// StoreMetadata writes an entry and moves its index memberships.
func (s *Store) StoreMetadata(ctx context.Context, entry *memory.MemoryEntry) error {
	if entry == nil || entry.ID == "" {
		return storage.DatabaseError(backend, "store", memory.ErrInvalidEntryID)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return storage.SerializationError(backend, "store", err)
	}

	old, found, err := s.GetMetadata(ctx, entry.ID)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if found {
			for _, key := range s.indexKeys(old) {
				pipe.ZRem(ctx, key, old.ID)
			}
		}
		pipe.Set(ctx, s.entryKey(entry.ID), data, 0)
		for _, key := range s.indexKeys(entry) {
			pipe.ZAdd(ctx, key, redis.Z{Score: score(entry), Member: entry.ID})
		}
		return nil
	})
	if err != nil {
		return storage.DatabaseError(backend, "store", err)
	}
	return nil
}

// GetMetadata fetches one entry.
func (s *Store) GetMetadata(ctx context.Context, id string) (*memory.MemoryEntry, bool, error) {
	data, err := s.client.Get(ctx, s.entryKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storage.DatabaseError(backend, "get", err)
	}
	var entry memory.MemoryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, storage.SerializationError(backend, "get", err)
	}
	return &entry, true, nil
}

// UpdateMetadata replaces an entry.
func (s *Store) UpdateMetadata(ctx context.Context, entry *memory.MemoryEntry) error {
	return s.StoreMetadata(ctx, entry)
}

// DeleteMetadata removes an entry and its index memberships.
func (s *Store) DeleteMetadata(ctx context.Context, id string) error {
	old, found, err := s.GetMetadata(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range s.indexKeys(old) {
			pipe.ZRem(ctx, key, id)
		}
		pipe.Del(ctx, s.entryKey(id))
		return nil
	})
	if err != nil {
		return storage.DatabaseError(backend, "delete", err)
	}
	return nil
}

// ListByType lists entries of one kind, newest first.
func (s *Store) ListByType(ctx context.Context, memoryType memory.MemoryType, limit int) ([]*memory.MemoryEntry, error) {
	if limit <= 0 {
		return []*memory.MemoryEntry{}, nil
	}
	entries, err := s.load(ctx, s.typeKey(memoryType), int64(limit))
	if err != nil {
		return nil, err
	}
	return storage.Truncate(entries, limit), nil
}

// ListByUser lists entries owned by userID, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*memory.MemoryEntry, error) {
	if limit <= 0 {
		return []*memory.MemoryEntry{}, nil
	}
	entries, err := s.load(ctx, s.userKey(userID), int64(limit))
	if err != nil {
		return nil, err
	}
	return storage.Truncate(entries, limit), nil
}

// SearchMetadata scans all entries for a content substring.
func (s *Store) SearchMetadata(ctx context.Context, query string, limit int) ([]*memory.MemoryEntry, error) {
	if limit <= 0 {
		return []*memory.MemoryEntry{}, nil
	}
	all, err := s.load(ctx, s.allKey(), 0)
	if err != nil {
		return nil, err
	}
	matched := make([]*memory.MemoryEntry, 0, len(all))
	for _, entry := range all {
		if storage.ContainsContent(entry, query) {
			matched = append(matched, entry)
		}
	}
	return storage.Truncate(matched, limit), nil
}

// load reads up to n newest members of an index (all when n is 0) and
// hydrates them. IDs whose entry key has vanished are skipped.
func (s *Store) load(ctx context.Context, indexKey string, n int64) ([]*memory.MemoryEntry, error) {
	ids, err := s.client.ZRevRange(ctx, indexKey, 0, n-1).Result()
	if err != nil {
		return nil, storage.DatabaseError(backend, "list", err)
	}
	if len(ids) == 0 {
		return []*memory.MemoryEntry{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.entryKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storage.DatabaseError(backend, "list", err)
	}

	entries := make([]*memory.MemoryEntry, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var entry memory.MemoryEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, storage.SerializationError(backend, "list", err)
		}
		entries = append(entries, &entry)
	}
	storage.SortRecentFirst(entries)
	return entries, nil
}

// Close closes the client when the store owns it.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Package cache layers an in-process LRU over any storage.MetadataStorage.
package cache

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/goclaw/agentmemory/pkg/memory"
	"github.com/goclaw/agentmemory/pkg/storage"
)

// LRU is an in-memory LRU cache for hot memory entries. Entries are cloned
// on the way in and out.
type LRU struct {
	entries *lru.Cache[string, *memory.MemoryEntry]
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewLRU creates an LRU cache holding at most maxSize entries.
func NewLRU(maxSize int) *LRU {
	if maxSize <= 0 {
		maxSize = 1
	}
	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[string, *memory.MemoryEntry](maxSize)
	return &LRU{entries: entries}
}

// Get retrieves an entry, promoting it to the front.
func (c *LRU) Get(key string) (*memory.MemoryEntry, bool) {
	if entry, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return entry.Clone(), true
	}
	c.misses.Add(1)
	return nil, false
}

// Put adds or updates an entry.
func (c *LRU) Put(key string, entry *memory.MemoryEntry) {
	c.entries.Add(key, entry.Clone())
}

// Delete removes an entry.
func (c *LRU) Delete(key string) {
	c.entries.Remove(key)
}

// Len returns the number of cached entries.
func (c *LRU) Len() int {
	return c.entries.Len()
}

// HitRate returns the hit rate (0.0-1.0) and total lookups.
func (c *LRU) HitRate() (rate float64, total int64) {
	hits := c.hits.Load()
	total = hits + c.misses.Load()
	if total == 0 {
		return 0, 0
	}
	return float64(hits) / float64(total), total
}

// MetadataStore is a read-through, write-through cache over a backend.
// Only point lookups are served from the cache; list and search queries
// always reach the backend.
type MetadataStore struct {
	next  storage.MetadataStorage
	cache *LRU
}

var _ storage.MetadataStorage = (*MetadataStore)(nil)

// Wrap returns next with an LRU of the given size in front of it.
func Wrap(next storage.MetadataStorage, size int) *MetadataStore {
	return &MetadataStore{next: next, cache: NewLRU(size)}
}

// Unwrap returns the backend behind the cache.
func (s *MetadataStore) Unwrap() storage.MetadataStorage {
	return s.next
}

// Stats exposes the underlying cache for hit-rate reporting.
func (s *MetadataStore) Stats() *LRU {
	return s.cache
}

func (s *MetadataStore) StoreMetadata(ctx context.Context, entry *memory.MemoryEntry) error {
	if entry == nil {
		return s.next.StoreMetadata(ctx, entry)
	}
	if err := s.next.StoreMetadata(ctx, entry); err != nil {
		s.cache.Delete(entry.ID)
		return err
	}
	s.cache.Put(entry.ID, entry)
	return nil
}

func (s *MetadataStore) GetMetadata(ctx context.Context, id string) (*memory.MemoryEntry, bool, error) {
	if entry, ok := s.cache.Get(id); ok {
		return entry, true, nil
	}
	entry, found, err := s.next.GetMetadata(ctx, id)
	if err != nil || !found {
		return entry, found, err
	}
	s.cache.Put(id, entry)
	return entry, true, nil
}

func (s *MetadataStore) UpdateMetadata(ctx context.Context, entry *memory.MemoryEntry) error {
	if entry == nil {
		return s.next.UpdateMetadata(ctx, entry)
	}
	if err := s.next.UpdateMetadata(ctx, entry); err != nil {
		s.cache.Delete(entry.ID)
		return err
	}
	s.cache.Put(entry.ID, entry)
	return nil
}

func (s *MetadataStore) DeleteMetadata(ctx context.Context, id string) error {
	s.cache.Delete(id)
	return s.next.DeleteMetadata(ctx, id)
}

func (s *MetadataStore) ListByType(ctx context.Context, memoryType memory.MemoryType, limit int) ([]*memory.MemoryEntry, error) {
	return s.next.ListByType(ctx, memoryType, limit)
}

func (s *MetadataStore) ListByUser(ctx context.Context, userID string, limit int) ([]*memory.MemoryEntry, error) {
	return s.next.ListByUser(ctx, userID, limit)
}

func (s *MetadataStore) SearchMetadata(ctx context.Context, query string, limit int) ([]*memory.MemoryEntry, error) {
	return s.next.SearchMetadata(ctx, query, limit)
}

func (s *MetadataStore) Close() error {
	return s.next.Close()
}

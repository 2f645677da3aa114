// Package memory provides in-process implementations of the metadata and
// vector storage contracts.
package memory

import (
	"context"
	"sync"

	"github.com/goclaw/agentmemory/pkg/memory"
	"github.com/goclaw/agentmemory/pkg/storage"
)

// MetadataStore implements storage.MetadataStorage using in-memory maps.
type MetadataStore struct {
	mu      sync.RWMutex
	entries map[string]*memory.MemoryEntry
}

var _ storage.MetadataStorage = (*MetadataStore)(nil)

// NewMetadataStore creates an empty in-memory metadata store.
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{
		entries: make(map[string]*memory.MemoryEntry),
	}
}

// StoreMetadata saves a deep copy of the entry.
func (m *MetadataStore) StoreMetadata(ctx context.Context, entry *memory.MemoryEntry) error {
	if entry == nil || entry.ID == "" {
		return storage.DatabaseError("memory", "store", memory.ErrInvalidEntryID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = entry.Clone()
	return nil
}

// GetMetadata retrieves an entry by ID.
func (m *MetadataStore) GetMetadata(ctx context.Context, id string) (*memory.MemoryEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, false, nil
	}
	return entry.Clone(), true, nil
}

// UpdateMetadata replaces an entry.
func (m *MetadataStore) UpdateMetadata(ctx context.Context, entry *memory.MemoryEntry) error {
	return m.StoreMetadata(ctx, entry)
}

// DeleteMetadata removes an entry.
func (m *MetadataStore) DeleteMetadata(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

// ListByType lists entries of one memory kind.
func (m *MetadataStore) ListByType(ctx context.Context, memoryType memory.MemoryType, limit int) ([]*memory.MemoryEntry, error) {
	return m.filter(limit, func(e *memory.MemoryEntry) bool {
		return e.MemoryType == memoryType
	}), nil
}

// ListByUser lists entries owned by a user.
func (m *MetadataStore) ListByUser(ctx context.Context, userID string, limit int) ([]*memory.MemoryEntry, error) {
	return m.filter(limit, func(e *memory.MemoryEntry) bool {
		return e.UserID() == userID
	}), nil
}

// SearchMetadata lists entries whose content contains query.
func (m *MetadataStore) SearchMetadata(ctx context.Context, query string, limit int) ([]*memory.MemoryEntry, error) {
	return m.filter(limit, func(e *memory.MemoryEntry) bool {
		return storage.ContainsContent(e, query)
	}), nil
}

// Len returns the number of stored entries.
func (m *MetadataStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op.
func (m *MetadataStore) Close() error {
	return nil
}

func (m *MetadataStore) filter(limit int, keep func(*memory.MemoryEntry) bool) []*memory.MemoryEntry {
	if limit <= 0 {
		return []*memory.MemoryEntry{}
	}
	m.mu.RLock()
	var out []*memory.MemoryEntry
	for _, e := range m.entries {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	m.mu.RUnlock()

	storage.SortRecentFirst(out)
	return storage.Truncate(out, limit)
}

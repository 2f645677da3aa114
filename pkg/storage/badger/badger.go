// Package badger provides a Badger-based implementation of the metadata
// storage contract.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goclaw/agentmemory/pkg/memory"
	"github.com/goclaw/agentmemory/pkg/storage"
)

const backend = "badger"

// Config holds configuration for MetadataStore.
type Config struct {
	Path              string
	SyncWrites        bool
	ValueLogFileSize  int64
	NumVersionsToKeep int
}

// MetadataStore implements storage.MetadataStorage using Badger.
//
// Each entry is stored under memory:entry:{id}. Secondary index keys under
// memory:index:type:{type}:{ts}:{id} and memory:index:user:{user}:{ts}:{id}
// hold the entry ID as value; the zero-padded timestamp makes a reverse
// prefix scan yield most-recent-first order.
type MetadataStore struct {
	db     *badger.DB
	config *Config
}

var _ storage.MetadataStorage = (*MetadataStore)(nil)

// NewMetadataStore opens a Badger database at config.Path.
func NewMetadataStore(config *Config) (*MetadataStore, error) {
	if config == nil || config.Path == "" {
		return nil, storage.ConfigError(backend, "open", errors.New("path is required"))
	}
	opts := badger.DefaultOptions(config.Path)
	opts.SyncWrites = config.SyncWrites
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	}
	if config.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = config.NumVersionsToKeep
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, storage.ConnectionError(backend, "open", err)
	}

	return &MetadataStore{
		db:     db,
		config: config,
	}, nil
}

// Key generation functions
func entryKey(id string) []byte {
	return []byte("memory:entry:" + id)
}

func typeIndexPrefix(memoryType memory.MemoryType) []byte {
	return []byte(fmt.Sprintf("memory:index:type:%s:", memoryType))
}

func userIndexPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("memory:index:user:%s:", userID))
}

func indexKey(prefix []byte, entry *memory.MemoryEntry) []byte {
	ts := entry.Timestamp.UnixNano()
	if ts < 0 {
		ts = 0
	}
	return append(append([]byte(nil), prefix...), []byte(fmt.Sprintf("%020d:%s", ts, entry.ID))...)
}

func indexKeys(entry *memory.MemoryEntry) [][]byte {
	keys := [][]byte{indexKey(typeIndexPrefix(entry.MemoryType), entry)}
	if user := entry.UserID(); user != "" {
		keys = append(keys, indexKey(userIndexPrefix(user), entry))
	}
	return keys
}

// Serialization helpers
func serialize(entry *memory.MemoryEntry) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, storage.SerializationError(backend, "marshal", err)
	}
	return data, nil
}

func deserialize(data []byte) (*memory.MemoryEntry, error) {
	var entry memory.MemoryEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, storage.SerializationError(backend, "unmarshal", err)
	}
	return &entry, nil
}

func getEntry(txn *badger.Txn, id string) (*memory.MemoryEntry, error) {
	item, err := txn.Get(entryKey(id))
	if err != nil {
		return nil, err
	}
	var entry *memory.MemoryEntry
	err = item.Value(func(val []byte) error {
		var derr error
		entry, derr = deserialize(val)
		return derr
	})
	return entry, err
}

// StoreMetadata saves an entry and rewrites its index keys.
func (b *MetadataStore) StoreMetadata(ctx context.Context, entry *memory.MemoryEntry) error {
	if entry == nil || entry.ID == "" {
		return storage.DatabaseError(backend, "store", memory.ErrInvalidEntryID)
	}
	data, err := serialize(entry)
	if err != nil {
		return err
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		old, err := getEntry(txn, entry.ID)
		switch {
		case err == nil:
			for _, key := range indexKeys(old) {
				if err := txn.Delete(key); err != nil {
					return err
				}
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		if err := txn.Set(entryKey(entry.ID), data); err != nil {
			return err
		}
		for _, key := range indexKeys(entry) {
			if err := txn.Set(key, []byte(entry.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var se *storage.Error
		if errors.As(err, &se) {
			return err
		}
		return storage.DatabaseError(backend, "store", err)
	}
	return nil
}

// GetMetadata retrieves an entry by ID.
func (b *MetadataStore) GetMetadata(ctx context.Context, id string) (*memory.MemoryEntry, bool, error) {
	var entry *memory.MemoryEntry
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		entry, err = getEntry(txn, id)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		var se *storage.Error
		if errors.As(err, &se) {
			return nil, false, err
		}
		return nil, false, storage.DatabaseError(backend, "get", err)
	}
	return entry, true, nil
}

// UpdateMetadata replaces an entry.
func (b *MetadataStore) UpdateMetadata(ctx context.Context, entry *memory.MemoryEntry) error {
	return b.StoreMetadata(ctx, entry)
}

// DeleteMetadata removes an entry and its index keys.
func (b *MetadataStore) DeleteMetadata(ctx context.Context, id string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		old, err := getEntry(txn, id)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, key := range indexKeys(old) {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return txn.Delete(entryKey(id))
	})
	if err != nil {
		return storage.DatabaseError(backend, "delete", err)
	}
	return nil
}

// ListByType lists entries of one memory kind.
func (b *MetadataStore) ListByType(ctx context.Context, memoryType memory.MemoryType, limit int) ([]*memory.MemoryEntry, error) {
	return b.scanIndex(typeIndexPrefix(memoryType), limit, func(e *memory.MemoryEntry) bool {
		return e.MemoryType == memoryType
	})
}

// ListByUser lists entries owned by a user.
func (b *MetadataStore) ListByUser(ctx context.Context, userID string, limit int) ([]*memory.MemoryEntry, error) {
	return b.scanIndex(userIndexPrefix(userID), limit, func(e *memory.MemoryEntry) bool {
		return e.UserID() == userID
	})
}

// scanIndex walks an index prefix newest-first and hydrates up to limit
// entries. The keep check guards against IDs that share a prefix.
func (b *MetadataStore) scanIndex(prefix []byte, limit int, keep func(*memory.MemoryEntry) bool) ([]*memory.MemoryEntry, error) {
	if limit <= 0 {
		return []*memory.MemoryEntry{}, nil
	}

	var entries []*memory.MemoryEntry
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte(nil), prefix...), 0xFF)
		for it.Seek(seek); it.Valid() && len(entries) < limit; it.Next() {
			var id string
			if err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}

			entry, err := getEntry(txn, id)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if keep(entry) {
				entries = append(entries, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, storage.DatabaseError(backend, "list", err)
	}

	storage.SortRecentFirst(entries)
	return entries, nil
}

// SearchMetadata scans every entry for a content substring.
func (b *MetadataStore) SearchMetadata(ctx context.Context, query string, limit int) ([]*memory.MemoryEntry, error) {
	if limit <= 0 {
		return []*memory.MemoryEntry{}, nil
	}

	var entries []*memory.MemoryEntry
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("memory:entry:")

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var entry *memory.MemoryEntry
			err := it.Item().Value(func(val []byte) error {
				var derr error
				entry, derr = deserialize(val)
				return derr
			})
			if err != nil {
				continue
			}
			if storage.ContainsContent(entry, query) {
				entries = append(entries, entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, storage.DatabaseError(backend, "search", err)
	}

	storage.SortRecentFirst(entries)
	return storage.Truncate(entries, limit), nil
}

// Close runs value log GC and closes the database.
func (b *MetadataStore) Close() error {
	// GC is best effort; ErrNoRewrite just means nothing was reclaimed.
	_ = b.db.RunValueLogGC(0.5)
	return b.db.Close()
}

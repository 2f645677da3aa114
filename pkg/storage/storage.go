// Package storage defines the persistence contracts of the memory subsystem:
// a metadata store holding full MemoryEntry records and a vector store holding
// embeddings for similarity search.
package storage

import (
	"context"

	"github.com/goclaw/agentmemory/pkg/memory"
)

// MetadataStorage is durable CRUD over memory entries keyed by ID.
//
// All list queries return entries most-recent-first and at most limit
// entries. A non-positive limit yields an empty result.
type MetadataStorage interface {
	// StoreMetadata persists an entry, overwriting any entry with the same ID.
	StoreMetadata(ctx context.Context, entry *memory.MemoryEntry) error

	// GetMetadata returns the entry for id. found is false, with a nil error,
	// when no such entry exists.
	GetMetadata(ctx context.Context, id string) (entry *memory.MemoryEntry, found bool, err error)

	// UpdateMetadata replaces a stored entry.
	UpdateMetadata(ctx context.Context, entry *memory.MemoryEntry) error

	// DeleteMetadata removes an entry. Deleting an unknown ID is not an error.
	DeleteMetadata(ctx context.Context, id string) error

	// ListByType returns entries of one memory kind.
	ListByType(ctx context.Context, memoryType memory.MemoryType, limit int) ([]*memory.MemoryEntry, error)

	// ListByUser returns entries owned by userID.
	ListByUser(ctx context.Context, userID string, limit int) ([]*memory.MemoryEntry, error)

	// SearchMetadata returns entries whose content contains query.
	SearchMetadata(ctx context.Context, query string, limit int) ([]*memory.MemoryEntry, error)

	// Close releases backend resources.
	Close() error
}

// VectorMatch is one hit of a similarity search.
type VectorMatch struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// VectorStorage stores embeddings with a flat string payload.
type VectorStorage interface {
	// StoreVector upserts the vector at id.
	StoreVector(ctx context.Context, id string, vector []float32, metadata map[string]string) error

	// SearchVectors returns at most limit matches with score >= threshold,
	// sorted by descending cosine similarity.
	SearchVectors(ctx context.Context, query []float32, limit int, threshold float64) ([]VectorMatch, error)

	// DeleteVector removes the vector at id. Deleting an unknown ID is not an error.
	DeleteVector(ctx context.Context, id string) error

	// GetVector returns the stored vector, with found=false when absent.
	GetVector(ctx context.Context, id string) (vector []float32, found bool, err error)

	// Close releases backend resources.
	Close() error
}

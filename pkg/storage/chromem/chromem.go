// Package chromem implements storage.VectorStorage on chromem-go, an embedded
// pure Go vector database with optional on-disk persistence.
package chromem

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/goclaw/agentmemory/pkg/memory"
	"github.com/goclaw/agentmemory/pkg/storage"
)

const backend = "chromem"

// Config holds configuration for Store.
type Config struct {
	// Path enables persistence when non-empty.
	Path     string
	Compress bool

	Collection string

	// Dimension, when positive, is enforced on store and query.
	Dimension int
}

// Store wraps a single chromem collection.
type Store struct {
	db        *chromem.DB
	col       *chromem.Collection
	dimension int

	// chromem requires nResults <= document count, so queries read the count
	// and query under the same lock writers take.
	mu sync.RWMutex
}

var _ storage.VectorStorage = (*Store)(nil)

// New opens or creates the configured collection.
func New(cfg Config) (*Store, error) {
	if cfg.Collection == "" {
		cfg.Collection = "memory"
	}

	var db *chromem.DB
	if cfg.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, storage.ConnectionError(backend, "open", err)
		}
	} else {
		db = chromem.NewDB()
	}

	// No embedding func: every document arrives with its embedding.
	col, err := db.GetOrCreateCollection(cfg.Collection, nil, nil)
	if err != nil {
		return nil, storage.VectorError(backend, "open", fmt.Errorf("create collection: %w", err))
	}

	return &Store{db: db, col: col, dimension: cfg.Dimension}, nil
}

// StoreVector upserts a document carrying only the vector and payload.
func (s *Store) StoreVector(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	if id == "" {
		return storage.VectorError(backend, "store", memory.ErrInvalidEntryID)
	}
	if s.dimension > 0 && len(vector) != s.dimension {
		return storage.VectorError(backend, "store",
			fmt.Errorf("%w: expected %d, got %d", memory.ErrDimensionMismatch, s.dimension, len(vector)))
	}
	if isZero(vector) {
		return storage.VectorError(backend, "store", fmt.Errorf("vector for %q has zero magnitude", id))
	}

	doc := chromem.Document{
		ID:        id,
		Content:   id,
		Embedding: append([]float32(nil), vector...),
		Metadata:  memory.CloneMetadata(metadata),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.col.AddDocument(ctx, doc); err != nil {
		return storage.VectorError(backend, "store", fmt.Errorf("add document: %w", err))
	}
	return nil
}

// SearchVectors queries by cosine similarity. A query of the wrong
// dimension matches nothing.
func (s *Store) SearchVectors(ctx context.Context, query []float32, limit int, threshold float64) ([]storage.VectorMatch, error) {
	if limit <= 0 || isZero(query) {
		return []storage.VectorMatch{}, nil
	}
	if s.dimension > 0 && len(query) != s.dimension {
		return []storage.VectorMatch{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.col.Count()
	if n == 0 {
		return []storage.VectorMatch{}, nil
	}
	if limit > n {
		limit = n
	}

	results, err := s.col.QueryEmbedding(ctx, append([]float32(nil), query...), limit, nil, nil)
	if err != nil {
		if s.dimension == 0 && strings.Contains(err.Error(), "same length") {
			return []storage.VectorMatch{}, nil
		}
		return nil, storage.VectorError(backend, "search", err)
	}

	matches := make([]storage.VectorMatch, 0, len(results))
	for _, r := range results {
		score := float64(r.Similarity)
		if score < threshold {
			continue
		}
		matches = append(matches, storage.VectorMatch{
			ID:       r.ID,
			Score:    score,
			Metadata: memory.CloneMetadata(r.Metadata),
		})
	}
	storage.SortMatches(matches)
	return matches, nil
}

// DeleteVector removes a document if present.
func (s *Store) DeleteVector(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.col.GetByID(ctx, id); err != nil {
		return nil
	}
	if err := s.col.Delete(ctx, nil, nil, id); err != nil {
		return storage.VectorError(backend, "delete", err)
	}
	return nil
}

// GetVector returns the stored vector. chromem normalizes embeddings on
// insert, so the result has unit length.
func (s *Store) GetVector(ctx context.Context, id string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, err := s.col.GetByID(ctx, id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return nil, false, nil
		}
		return nil, false, storage.VectorError(backend, "get", err)
	}
	return append([]float32(nil), doc.Embedding...), true, nil
}

// Count returns the number of stored vectors.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.col.Count()
}

// Close is a no-op; persistent collections are written on every change.
func (s *Store) Close() error {
	return nil
}

func isZero(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return len(v) == 0 || math.Sqrt(sum) == 0
}

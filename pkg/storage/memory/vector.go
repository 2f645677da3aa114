package memory

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/goclaw/agentmemory/pkg/memory"
	"github.com/goclaw/agentmemory/pkg/storage"
)

// VectorIndex is a brute-force cosine similarity index held in memory. It
// optionally persists itself to a snapshot file on Close and reloads it on
// open.
type VectorIndex struct {
	mu           sync.RWMutex
	dimension    int
	vectors      map[string][]float32
	payloads     map[string]map[string]string
	snapshotPath string
}

var _ storage.VectorStorage = (*VectorIndex)(nil)

// NewVectorIndex creates an index for vectors of the given dimension. A
// dimension of 0 accepts vectors of any length.
func NewVectorIndex(dimension int) *VectorIndex {
	return &VectorIndex{
		dimension: dimension,
		vectors:   make(map[string][]float32),
		payloads:  make(map[string]map[string]string),
	}
}

// OpenVectorIndex creates an index bound to a snapshot file, loading it when
// the file already exists.
func OpenVectorIndex(dimension int, snapshotPath string) (*VectorIndex, error) {
	v := NewVectorIndex(dimension)
	v.snapshotPath = snapshotPath
	if snapshotPath == "" {
		return v, nil
	}
	if _, err := os.Stat(snapshotPath); errors.Is(err, os.ErrNotExist) {
		return v, nil
	}
	if err := v.Load(snapshotPath); err != nil {
		return nil, err
	}
	return v, nil
}

// StoreVector upserts a vector and its payload.
func (v *VectorIndex) StoreVector(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	if id == "" {
		return storage.VectorError("memory", "store", memory.ErrInvalidEntryID)
	}
	if v.dimension > 0 && len(vector) != v.dimension {
		return storage.VectorError("memory", "store",
			fmt.Errorf("%w: expected %d, got %d", memory.ErrDimensionMismatch, v.dimension, len(vector)))
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vectors[id] = append([]float32(nil), vector...)
	v.payloads[id] = memory.CloneMetadata(metadata)
	return nil
}

// SearchVectors scores every stored vector against query.
func (v *VectorIndex) SearchVectors(ctx context.Context, query []float32, limit int, threshold float64) ([]storage.VectorMatch, error) {
	if limit <= 0 {
		return []storage.VectorMatch{}, nil
	}

	v.mu.RLock()
	var results []storage.VectorMatch
	for id, vec := range v.vectors {
		score := memory.CosineSimilarity(query, vec)
		if score < threshold {
			continue
		}
		results = append(results, storage.VectorMatch{
			ID:       id,
			Score:    score,
			Metadata: memory.CloneMetadata(v.payloads[id]),
		})
	}
	v.mu.RUnlock()

	storage.SortMatches(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// DeleteVector removes a vector.
func (v *VectorIndex) DeleteVector(ctx context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.vectors, id)
	delete(v.payloads, id)
	return nil
}

// GetVector returns a copy of the stored vector.
func (v *VectorIndex) GetVector(ctx context.Context, id string) ([]float32, bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	vec, ok := v.vectors[id]
	if !ok {
		return nil, false, nil
	}
	return append([]float32(nil), vec...), true, nil
}

// Len returns the number of vectors in the index.
func (v *VectorIndex) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.vectors)
}

// Close writes the snapshot file when one is configured.
func (v *VectorIndex) Close() error {
	if v.snapshotPath == "" {
		return nil
	}
	return v.Save(v.snapshotPath)
}

// Save persists the index to a file.
// Format: [dimension:uint32][count:uint32] then for each entry:
// [idLen:uint16][id][payloadLen:uint32][payload JSON][vecLen:uint32][vector:float32*vecLen]
func (v *VectorIndex) Save(path string) (err error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	// Write beside the target and rename, so a failed save never leaves a
	// truncated snapshot in place.
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return storage.VectorError("memory", "save", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	w := bufio.NewWriter(f)
	if err := v.writeTo(w); err != nil {
		return storage.VectorError("memory", "save", err)
	}
	if err := w.Flush(); err != nil {
		return storage.VectorError("memory", "save", err)
	}
	if err := f.Sync(); err != nil {
		return storage.VectorError("memory", "save", err)
	}
	if err := f.Close(); err != nil {
		return storage.VectorError("memory", "save", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return storage.VectorError("memory", "save", err)
	}
	return nil
}

func (v *VectorIndex) writeTo(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(v.dimension)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(v.vectors))); err != nil {
		return err
	}

	for id, vec := range v.vectors {
		if err := binary.Write(w, binary.LittleEndian, uint16(len(id))); err != nil {
			return err
		}
		if _, err := w.Write([]byte(id)); err != nil {
			return err
		}

		payload, err := json.Marshal(v.payloads[id])
		if err != nil {
			return storage.SerializationError("memory", "marshal payload", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(payload))); err != nil {
			return err
		}
		if _, err := w.Write(payload); err != nil {
			return err
		}

		if err := binary.Write(w, binary.LittleEndian, uint32(len(vec))); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, vec); err != nil {
			return err
		}
	}
	return nil
}

// Load replaces the index contents with a snapshot file.
func (v *VectorIndex) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return storage.VectorError("memory", "load", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var dim, count uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return storage.VectorError("memory", "load", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return storage.VectorError("memory", "load", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.dimension > 0 && int(dim) != v.dimension {
		return storage.VectorError("memory", "load",
			fmt.Errorf("%w: file has %d, index expects %d", memory.ErrDimensionMismatch, dim, v.dimension))
	}

	vectors := make(map[string][]float32, count)
	payloads := make(map[string]map[string]string, count)

	for i := uint32(0); i < count; i++ {
		var idLen uint16
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return storage.VectorError("memory", "load", err)
		}
		idBuf := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBuf); err != nil {
			return storage.VectorError("memory", "load", err)
		}

		var payloadLen uint32
		if err := binary.Read(r, binary.LittleEndian, &payloadLen); err != nil {
			return storage.VectorError("memory", "load", err)
		}
		payloadBuf := make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payloadBuf); err != nil {
			return storage.VectorError("memory", "load", err)
		}
		var payload map[string]string
		if err := json.Unmarshal(payloadBuf, &payload); err != nil {
			return storage.SerializationError("memory", "unmarshal payload", err)
		}

		var vecLen uint32
		if err := binary.Read(r, binary.LittleEndian, &vecLen); err != nil {
			return storage.VectorError("memory", "load", err)
		}
		vec := make([]float32, vecLen)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return storage.VectorError("memory", "load", err)
		}

		id := string(idBuf)
		vectors[id] = vec
		payloads[id] = payload
	}

	v.vectors = vectors
	v.payloads = payloads
	return nil
}

package storage

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/goclaw/agentmemory/pkg/memory"
)

// MetadataStorageSuite runs the MetadataStorage contract against any backend.
type MetadataStorageSuite struct {
	NewStorage func(t *testing.T) MetadataStorage
}

// RunAllTests runs every metadata contract test.
func (s *MetadataStorageSuite) RunAllTests(t *testing.T) {
	t.Run("CRUD", s.TestCRUD)
	t.Run("GetUnknown", s.TestGetUnknown)
	t.Run("DeleteIdempotent", s.TestDeleteIdempotent)
	t.Run("RelevanceNullable", s.TestRelevanceNullable)
	t.Run("ListByType", s.TestListByType)
	t.Run("ListByUser", s.TestListByUser)
	t.Run("SearchMetadata", s.TestSearchMetadata)
	t.Run("NonPositiveLimit", s.TestNonPositiveLimit)
	t.Run("ConcurrentAccess", s.TestConcurrentAccess)
}

// baseTime is truncated to milliseconds so every backend round-trips it exactly.
var baseTime = time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

func suiteEntry(id, content string, memoryType memory.MemoryType, offset time.Duration) *memory.MemoryEntry {
	return &memory.MemoryEntry{
		ID:         id,
		Content:    content,
		Metadata:   map[string]string{memory.MetaAgentID: "agent-1"},
		Timestamp:  baseTime.Add(offset),
		MemoryType: memoryType,
	}
}

func ids(entries []*memory.MemoryEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func equalIDs(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// TestCRUD covers store, get, update and delete.
func (s *MetadataStorageSuite) TestCRUD(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	entry := suiteEntry("crud-1", "Paris is the capital of France", memory.Semantic, 0)
	entry.Metadata[memory.MetaUserID] = "user-1"
	entry.Metadata["topic"] = "geography"

	if err := store.StoreMetadata(ctx, entry); err != nil {
		t.Fatalf("StoreMetadata failed: %v", err)
	}

	got, found, err := store.GetMetadata(ctx, "crud-1")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if !found {
		t.Fatal("expected entry to be found")
	}
	if got.Content != entry.Content {
		t.Errorf("expected content %q, got %q", entry.Content, got.Content)
	}
	if got.MemoryType != memory.Semantic {
		t.Errorf("expected type Semantic, got %s", got.MemoryType)
	}
	if !got.Timestamp.Equal(entry.Timestamp) {
		t.Errorf("expected timestamp %v, got %v", entry.Timestamp, got.Timestamp)
	}
	if got.Metadata["topic"] != "geography" || got.UserID() != "user-1" || got.AgentID() != "agent-1" {
		t.Errorf("metadata not preserved: %v", got.Metadata)
	}

	got.Content = "Paris is the capital and largest city of France"
	got.SetRelevance(0.75)
	if err := store.UpdateMetadata(ctx, got); err != nil {
		t.Fatalf("UpdateMetadata failed: %v", err)
	}

	updated, found, err := store.GetMetadata(ctx, "crud-1")
	if err != nil || !found {
		t.Fatalf("GetMetadata after update: found=%v err=%v", found, err)
	}
	if updated.Content != got.Content {
		t.Errorf("expected updated content, got %q", updated.Content)
	}
	if updated.RelevanceScore == nil || math.Abs(*updated.RelevanceScore-0.75) > 1e-9 {
		t.Errorf("expected relevance 0.75, got %v", updated.RelevanceScore)
	}

	if err := store.DeleteMetadata(ctx, "crud-1"); err != nil {
		t.Fatalf("DeleteMetadata failed: %v", err)
	}
	if _, found, err := store.GetMetadata(ctx, "crud-1"); err != nil || found {
		t.Errorf("expected deleted entry to be absent, found=%v err=%v", found, err)
	}
}

// TestGetUnknown checks that a missing ID is not an error.
func (s *MetadataStorageSuite) TestGetUnknown(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	got, found, err := store.GetMetadata(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("expected nil error for unknown id, got %v", err)
	}
	if found || got != nil {
		t.Errorf("expected not found, got %+v", got)
	}
}

// TestDeleteIdempotent deletes the same ID twice.
func (s *MetadataStorageSuite) TestDeleteIdempotent(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.StoreMetadata(ctx, suiteEntry("del-1", "x", memory.Working, 0)); err != nil {
		t.Fatalf("StoreMetadata failed: %v", err)
	}
	if err := store.DeleteMetadata(ctx, "del-1"); err != nil {
		t.Fatalf("first delete failed: %v", err)
	}
	if err := store.DeleteMetadata(ctx, "del-1"); err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
	if err := store.DeleteMetadata(ctx, "never-stored"); err != nil {
		t.Fatalf("delete of unknown id failed: %v", err)
	}
}

// TestRelevanceNullable checks that an unset relevance stays unset.
func (s *MetadataStorageSuite) TestRelevanceNullable(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.StoreMetadata(ctx, suiteEntry("rel-nil", "a", memory.Episodic, 0)); err != nil {
		t.Fatalf("StoreMetadata failed: %v", err)
	}
	if err := store.StoreMetadata(ctx, suiteEntry("rel-set", "b", memory.Episodic, 0).WithRelevance(0.25)); err != nil {
		t.Fatalf("StoreMetadata failed: %v", err)
	}

	got, _, err := store.GetMetadata(ctx, "rel-nil")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if got.RelevanceScore != nil {
		t.Errorf("expected nil relevance, got %v", *got.RelevanceScore)
	}

	got, _, err = store.GetMetadata(ctx, "rel-set")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if got.RelevanceScore == nil || math.Abs(*got.RelevanceScore-0.25) > 1e-9 {
		t.Errorf("expected relevance 0.25, got %v", got.RelevanceScore)
	}
}

// TestListByType checks kind filtering, ordering and limits.
func (s *MetadataStorageSuite) TestListByType(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	entries := []*memory.MemoryEntry{
		suiteEntry("sem-old", "old fact", memory.Semantic, 0),
		suiteEntry("sem-mid", "mid fact", memory.Semantic, time.Minute),
		suiteEntry("sem-new", "new fact", memory.Semantic, 2*time.Minute),
		suiteEntry("work-1", "hello", memory.Working, 3*time.Minute),
	}
	for _, e := range entries {
		if err := store.StoreMetadata(ctx, e); err != nil {
			t.Fatalf("StoreMetadata(%s) failed: %v", e.ID, err)
		}
	}

	got, err := store.ListByType(ctx, memory.Semantic, 10)
	if err != nil {
		t.Fatalf("ListByType failed: %v", err)
	}
	if !equalIDs(ids(got), "sem-new", "sem-mid", "sem-old") {
		t.Errorf("expected most-recent-first semantic entries, got %v", ids(got))
	}

	got, err = store.ListByType(ctx, memory.Semantic, 2)
	if err != nil {
		t.Fatalf("ListByType with limit failed: %v", err)
	}
	if !equalIDs(ids(got), "sem-new", "sem-mid") {
		t.Errorf("expected 2 newest semantic entries, got %v", ids(got))
	}

	got, err = store.ListByType(ctx, memory.Procedural, 10)
	if err != nil {
		t.Fatalf("ListByType(Procedural) failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no procedural entries, got %v", ids(got))
	}
}

// TestListByUser checks owner filtering and ordering.
func (s *MetadataStorageSuite) TestListByUser(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	for i, user := range []string{"u1", "u2", "u1", "u1"} {
		e := suiteEntry(fmt.Sprintf("user-%d", i), fmt.Sprintf("note %d", i), memory.Episodic, time.Duration(i)*time.Second)
		e.Metadata[memory.MetaUserID] = user
		if err := store.StoreMetadata(ctx, e); err != nil {
			t.Fatalf("StoreMetadata failed: %v", err)
		}
	}

	got, err := store.ListByUser(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if !equalIDs(ids(got), "user-3", "user-2", "user-0") {
		t.Errorf("expected u1 entries newest first, got %v", ids(got))
	}

	got, err = store.ListByUser(ctx, "nobody", 10)
	if err != nil {
		t.Fatalf("ListByUser(nobody) failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no entries, got %v", ids(got))
	}
}

// TestSearchMetadata checks substring search over content.
func (s *MetadataStorageSuite) TestSearchMetadata(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	entries := []*memory.MemoryEntry{
		suiteEntry("s-1", "deploy the service to staging", memory.Procedural, 0),
		suiteEntry("s-2", "the user likes green tea", memory.Episodic, time.Second),
		suiteEntry("s-3", "redeploy after the config change", memory.Episodic, 2*time.Second),
	}
	for _, e := range entries {
		if err := store.StoreMetadata(ctx, e); err != nil {
			t.Fatalf("StoreMetadata failed: %v", err)
		}
	}

	got, err := store.SearchMetadata(ctx, "deploy", 10)
	if err != nil {
		t.Fatalf("SearchMetadata failed: %v", err)
	}
	if !equalIDs(ids(got), "s-3", "s-1") {
		t.Errorf("expected s-3, s-1; got %v", ids(got))
	}

	got, err = store.SearchMetadata(ctx, "deploy", 1)
	if err != nil {
		t.Fatalf("SearchMetadata with limit failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 result, got %d", len(got))
	}

	got, err = store.SearchMetadata(ctx, "coffee", 10)
	if err != nil {
		t.Fatalf("SearchMetadata(coffee) failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results, got %v", ids(got))
	}
}

// TestNonPositiveLimit checks that a zero limit lists nothing.
func (s *MetadataStorageSuite) TestNonPositiveLimit(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.StoreMetadata(ctx, suiteEntry("lim-1", "content", memory.Working, 0)); err != nil {
		t.Fatalf("StoreMetadata failed: %v", err)
	}
	got, err := store.ListByType(ctx, memory.Working, 0)
	if err != nil {
		t.Fatalf("ListByType failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result for limit 0, got %d", len(got))
	}
}

// TestConcurrentAccess stores entries from several goroutines.
func (s *MetadataStorageSuite) TestConcurrentAccess(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := suiteEntry(fmt.Sprintf("conc-%d", i), "concurrent", memory.Working, time.Duration(i)*time.Millisecond)
			errs <- store.StoreMetadata(ctx, e)
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent StoreMetadata failed: %v", err)
		}
	}

	got, err := store.ListByType(ctx, memory.Working, 100)
	if err != nil {
		t.Fatalf("ListByType failed: %v", err)
	}
	if len(got) != workers {
		t.Errorf("expected %d entries, got %d", workers, len(got))
	}
}

// VectorStorageSuite runs the VectorStorage contract against any backend.
// NewStorage must return a store for 3-dimensional vectors.
type VectorStorageSuite struct {
	NewStorage func(t *testing.T) VectorStorage
}

// RunAllTests runs every vector contract test.
func (s *VectorStorageSuite) RunAllTests(t *testing.T) {
	t.Run("StoreAndSearch", s.TestStoreAndSearch)
	t.Run("Threshold", s.TestThreshold)
	t.Run("Limit", s.TestLimit)
	t.Run("Upsert", s.TestUpsert)
	t.Run("DeleteIdempotent", s.TestDeleteIdempotent)
	t.Run("GetMissing", s.TestGetMissing)
	t.Run("Payload", s.TestPayload)
}

// TestStoreAndSearch checks ranking order.
func (s *VectorStorageSuite) TestStoreAndSearch(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	vectors := map[string][]float32{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
		"c": {0.9, 0.1, 0},
	}
	for id, v := range vectors {
		if err := store.StoreVector(ctx, id, v, nil); err != nil {
			t.Fatalf("StoreVector(%s) failed: %v", id, err)
		}
	}

	matches, err := store.SearchVectors(ctx, []float32{1, 0, 0}, 2, 0)
	if err != nil {
		t.Fatalf("SearchVectors failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "a" || matches[1].ID != "c" {
		t.Errorf("expected [a c], got [%s %s]", matches[0].ID, matches[1].ID)
	}
	if math.Abs(matches[0].Score-1.0) > 0.001 {
		t.Errorf("expected top score ~1.0, got %f", matches[0].Score)
	}
	if matches[0].Score < matches[1].Score {
		t.Errorf("matches not sorted: %f < %f", matches[0].Score, matches[1].Score)
	}
}

// TestThreshold checks that every returned score meets the threshold.
func (s *VectorStorageSuite) TestThreshold(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	_ = store.StoreVector(ctx, "a", []float32{1, 0, 0}, nil)
	_ = store.StoreVector(ctx, "b", []float32{0, 1, 0}, nil)
	_ = store.StoreVector(ctx, "c", []float32{0.7, 0.7, 0}, nil)

	matches, err := store.SearchVectors(ctx, []float32{1, 0, 0}, 10, 0.9)
	if err != nil {
		t.Fatalf("SearchVectors failed: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "a" {
		t.Errorf("expected only a above 0.9, got %+v", matches)
	}
	for _, m := range matches {
		if m.Score < 0.9 {
			t.Errorf("match %s score %f below threshold", m.ID, m.Score)
		}
	}
}

// TestLimit checks that at most limit matches are returned.
func (s *VectorStorageSuite) TestLimit(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		v := []float32{1, float32(i) / 10, 0}
		if err := store.StoreVector(ctx, fmt.Sprintf("v-%d", i), v, nil); err != nil {
			t.Fatalf("StoreVector failed: %v", err)
		}
	}
	matches, err := store.SearchVectors(ctx, []float32{1, 0, 0}, 3, -1)
	if err != nil {
		t.Fatalf("SearchVectors failed: %v", err)
	}
	if len(matches) != 3 {
		t.Errorf("expected 3 matches, got %d", len(matches))
	}
}

// TestUpsert overwrites a vector.
func (s *VectorStorageSuite) TestUpsert(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	if err := store.StoreVector(ctx, "a", []float32{1, 0, 0}, nil); err != nil {
		t.Fatalf("StoreVector failed: %v", err)
	}
	if err := store.StoreVector(ctx, "a", []float32{0, 1, 0}, nil); err != nil {
		t.Fatalf("StoreVector (upsert) failed: %v", err)
	}

	got, found, err := store.GetVector(ctx, "a")
	if err != nil || !found {
		t.Fatalf("GetVector: found=%v err=%v", found, err)
	}
	if memory.CosineSimilarity(got, []float32{0, 1, 0}) < 0.999 {
		t.Errorf("expected overwritten vector, got %v", got)
	}

	matches, err := store.SearchVectors(ctx, []float32{0, 1, 0}, 10, 0.5)
	if err != nil {
		t.Fatalf("SearchVectors failed: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("expected a single point after upsert, got %d", len(matches))
	}
}

// TestDeleteIdempotent deletes the same vector twice.
func (s *VectorStorageSuite) TestDeleteIdempotent(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	_ = store.StoreVector(ctx, "a", []float32{1, 0, 0}, nil)
	if err := store.DeleteVector(ctx, "a"); err != nil {
		t.Fatalf("first delete failed: %v", err)
	}
	if err := store.DeleteVector(ctx, "a"); err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
	if _, found, _ := store.GetVector(ctx, "a"); found {
		t.Error("expected vector to be gone")
	}
}

// TestGetMissing checks that a missing vector is reported as absent.
func (s *VectorStorageSuite) TestGetMissing(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()

	v, found, err := store.GetVector(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetVector failed: %v", err)
	}
	if found || v != nil {
		t.Errorf("expected missing vector, got %v", v)
	}
}

// TestPayload checks that metadata round-trips through search.
func (s *VectorStorageSuite) TestPayload(t *testing.T) {
	store := s.NewStorage(t)
	defer store.Close()
	ctx := context.Background()

	payload := map[string]string{"memory_type": "Semantic", memory.MetaAgentID: "agent-1"}
	if err := store.StoreVector(ctx, "p", []float32{0, 0, 1}, payload); err != nil {
		t.Fatalf("StoreVector failed: %v", err)
	}
	matches, err := store.SearchVectors(ctx, []float32{0, 0, 1}, 1, 0.5)
	if err != nil {
		t.Fatalf("SearchVectors failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	for k, v := range payload {
		if matches[0].Metadata[k] != v {
			t.Errorf("payload[%s] = %q, want %q", k, matches[0].Metadata[k], v)
		}
	}
}

package badger

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/goclaw/agentmemory/pkg/memory"
	"github.com/goclaw/agentmemory/pkg/storage"
)

// TestMetadataStoreSuite runs the shared metadata suite against MetadataStore.
func TestMetadataStoreSuite(t *testing.T) {
	suite := &storage.MetadataStorageSuite{
		NewStorage: func(t *testing.T) storage.MetadataStorage {
			db, _ := setupTestDB(t)
			return db
		},
	}

	suite.RunAllTests(t)
}

func setupTestDB(t *testing.T) (*MetadataStore, *Config) {
	tmpDir, err := os.MkdirTemp("", "badger-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		os.RemoveAll(tmpDir)
	})

	config := &Config{
		Path:              tmpDir,
		SyncWrites:        false,   // Faster for tests
		ValueLogFileSize:  1 << 20, // 1MB
		NumVersionsToKeep: 1,
	}

	db, err := NewMetadataStore(config)
	if err != nil {
		t.Fatalf("Failed to create MetadataStore: %v", err)
	}
	return db, config
}

func TestNewMetadataStore_RequiresPath(t *testing.T) {
	_, err := NewMetadataStore(&Config{})
	if storage.KindOf(err) != storage.KindConfig {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestMetadataStore_PersistsAcrossReopen(t *testing.T) {
	db, config := setupTestDB(t)
	ctx := context.Background()

	entry := memory.NewEntry("persisted fact", memory.Semantic).
		WithMetadata(memory.MetaUserID, "user-7")
	if err := db.StoreMetadata(ctx, entry); err != nil {
		t.Fatalf("StoreMetadata failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewMetadataStore(config)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, found, err := reopened.GetMetadata(ctx, entry.ID)
	if err != nil || !found {
		t.Fatalf("GetMetadata after reopen: found=%v err=%v", found, err)
	}
	if got.Content != "persisted fact" {
		t.Errorf("unexpected content %q", got.Content)
	}

	byUser, err := reopened.ListByUser(ctx, "user-7", 10)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(byUser) != 1 {
		t.Errorf("expected user index to survive reopen, got %d entries", len(byUser))
	}
}

func TestMetadataStore_UpdateMovesIndexes(t *testing.T) {
	db, _ := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	entry := memory.NewEntry("typed", memory.Working).WithMetadata(memory.MetaUserID, "old-user")
	if err := db.StoreMetadata(ctx, entry); err != nil {
		t.Fatalf("StoreMetadata failed: %v", err)
	}

	updated := entry.Clone()
	updated.MemoryType = memory.Episodic
	updated.Metadata[memory.MetaUserID] = "new-user"
	updated.Timestamp = entry.Timestamp.Add(time.Minute)
	if err := db.UpdateMetadata(ctx, updated); err != nil {
		t.Fatalf("UpdateMetadata failed: %v", err)
	}

	working, _ := db.ListByType(ctx, memory.Working, 10)
	if len(working) != 0 {
		t.Errorf("stale type index: %d Working entries", len(working))
	}
	episodic, _ := db.ListByType(ctx, memory.Episodic, 10)
	if len(episodic) != 1 {
		t.Errorf("expected 1 Episodic entry, got %d", len(episodic))
	}
	oldUser, _ := db.ListByUser(ctx, "old-user", 10)
	if len(oldUser) != 0 {
		t.Errorf("stale user index: %d entries", len(oldUser))
	}
	newUser, _ := db.ListByUser(ctx, "new-user", 10)
	if len(newUser) != 1 {
		t.Errorf("expected 1 entry for new-user, got %d", len(newUser))
	}
}

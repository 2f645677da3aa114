package memory

import (
	"time"

	"github.com/google/uuid"
)

// MemoryEntry is a single memory record.
type MemoryEntry struct {
	// ID is the unique, immutable identifier for this entry.
	ID string `json:"id"`

	// Content is the raw text of the memory.
	Content string `json:"content"`

	// Metadata holds owner-scoped key-value pairs such as agent_id and user_id.
	Metadata map[string]string `json:"metadata"`

	// Timestamp is the creation time.
	Timestamp time.Time `json:"timestamp"`

	// MemoryType is the memory kind that owns the entry.
	MemoryType MemoryType `json:"memory_type"`

	// RelevanceScore is set by retrieval or explicit feedback. Nil until then.
	RelevanceScore *float64 `json:"relevance_score,omitempty"`

	// Embeddings is the vector computed for Content, if any.
	Embeddings []float32 `json:"embeddings,omitempty"`
}

// NewEntry creates an entry with a fresh ID and the current time.
func NewEntry(content string, memoryType MemoryType) *MemoryEntry {
	return &MemoryEntry{
		ID:         uuid.New().String(),
		Content:    content,
		Metadata:   make(map[string]string),
		Timestamp:  time.Now().UTC(),
		MemoryType: memoryType,
	}
}

// WithMetadata sets a metadata key and returns the entry.
func (e *MemoryEntry) WithMetadata(key, value string) *MemoryEntry {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// WithEmbeddings attaches a vector and returns the entry.
func (e *MemoryEntry) WithEmbeddings(vector []float32) *MemoryEntry {
	e.Embeddings = vector
	return e
}

// WithRelevance sets the relevance score and returns the entry.
func (e *MemoryEntry) WithRelevance(score float64) *MemoryEntry {
	e.SetRelevance(score)
	return e
}

// SetRelevance overwrites the relevance score.
func (e *MemoryEntry) SetRelevance(score float64) {
	s := score
	e.RelevanceScore = &s
}

// RelevanceOr returns the relevance score, or def when none was set.
func (e *MemoryEntry) RelevanceOr(def float64) float64 {
	if e.RelevanceScore == nil {
		return def
	}
	return *e.RelevanceScore
}

// AgentID returns the owning agent, if tagged.
func (e *MemoryEntry) AgentID() string {
	return e.Metadata[MetaAgentID]
}

// UserID returns the owning user, if tagged.
func (e *MemoryEntry) UserID() string {
	return e.Metadata[MetaUserID]
}

// Age returns how long ago the entry was created relative to now.
func (e *MemoryEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// SearchResult is the outcome of a ranked memory search.
type SearchResult struct {
	// Entries are the ranked matches, best first.
	Entries []*MemoryEntry `json:"entries"`

	// TotalCount is len(Entries).
	TotalCount int `json:"total_count"`

	// SearchTime is the wall time spent producing the result.
	SearchTime time.Duration `json:"search_time"`
}

// Package agentmemory binds an embedding provider, a vector store and a
// metadata store into one store/search/delete API scoped to an agent and,
// optionally, a user.
package agentmemory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goclaw/agentmemory/pkg/embedding"
	"github.com/goclaw/agentmemory/pkg/memory"
	"github.com/goclaw/agentmemory/pkg/storage"
)

const tracerName = "agentmemory.facade"

const (
	spanStore  = "agentmemory.store"
	spanSearch = "agentmemory.search"
	spanDelete = "agentmemory.delete"
)

// defaultRelevance is assigned to freshly stored entries.
const defaultRelevance = 0.5

// Logger is the minimal logger interface used by AgentMemory.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any) {}
func (nopLogger) Info(msg string, args ...any)  {}
func (nopLogger) Warn(msg string, args ...any)  {}
func (nopLogger) Error(msg string, args ...any) {}

// Recorder receives one observation per facade operation.
type Recorder interface {
	RecordMemoryOperation(operation, memoryType string, duration time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordMemoryOperation(string, string, time.Duration, error) {}

// Config scopes and tunes an AgentMemory.
type Config struct {
	AgentID string
	// UserID is optional. When set, searches also accept entries owned by
	// this user and GetUserMemories is enabled.
	UserID string

	// MaxResults is the default search limit.
	MaxResults int
	// SimilarityThreshold is the minimum vector score a hit needs.
	SimilarityThreshold float64
}

// Option configures an AgentMemory.
type Option func(*AgentMemory)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(m *AgentMemory) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(m *AgentMemory) {
		if r != nil {
			m.recorder = r
		}
	}
}

// AgentMemory is the memory facade. It is safe for concurrent use; writes
// are serialized and searches run concurrently.
type AgentMemory struct {
	// mu is shared by every scope derived with ForScope.
	mu *sync.RWMutex

	embedder embedding.Provider
	vectors  storage.VectorStorage
	metadata storage.MetadataStorage

	agentID    string
	userID     string
	maxResults int
	threshold  float64

	logger   Logger
	recorder Recorder
	tracer   trace.Tracer
}

// New creates a facade over the given backends.
func New(embedder embedding.Provider, vectors storage.VectorStorage, metadata storage.MetadataStorage, cfg Config, opts ...Option) (*AgentMemory, error) {
	if embedder == nil || vectors == nil || metadata == nil {
		return nil, errors.New("agentmemory: embedder, vector and metadata storage are required")
	}
	if cfg.AgentID == "" {
		return nil, errors.New("agentmemory: agent id is required")
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}

	m := &AgentMemory{
		mu:         &sync.RWMutex{},
		embedder:   embedder,
		vectors:    vectors,
		metadata:   metadata,
		agentID:    cfg.AgentID,
		userID:     cfg.UserID,
		maxResults: cfg.MaxResults,
		threshold:  cfg.SimilarityThreshold,
		logger:     nopLogger{},
		recorder:   nopRecorder{},
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ForScope returns a facade sharing this one's backends but owned by another
// agent and user. An empty agentID keeps the current agent.
func (m *AgentMemory) ForScope(agentID, userID string) *AgentMemory {
	scoped := *m
	if agentID != "" {
		scoped.agentID = agentID
	}
	scoped.userID = userID
	return &scoped
}

// AgentID returns the owning agent.
func (m *AgentMemory) AgentID() string { return m.agentID }

// UserID returns the configured user, or "".
func (m *AgentMemory) UserID() string { return m.userID }

// StoreMemory embeds content and persists it, metadata first and vector
// second. A vector failure leaves the metadata row in place; it still serves
// substring search and is skipped by similarity search.
func (m *AgentMemory) StoreMemory(ctx context.Context, content string, memoryType memory.MemoryType, metadata map[string]string) (id string, err error) {
	const op = "store"
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, spanStore, trace.WithAttributes(
		attribute.String("memory.type", memoryType.String()),
		attribute.String("agent.id", m.agentID),
	))
	defer func() {
		endSpan(span, err)
		m.recorder.RecordMemoryOperation(op, memoryType.String(), time.Since(start), err)
	}()

	if strings.TrimSpace(content) == "" {
		return "", fail(op, KindValidation, memory.ErrEmptyContent)
	}
	if !memoryType.Valid() {
		return "", fail(op, KindValidation, fmt.Errorf("%w: %q", memory.ErrInvalidMemoryType, memoryType))
	}

	vector, err := embedding.EmbedOne(ctx, m.embedder, content)
	if err != nil {
		return "", fail(op, KindEmbedding, err)
	}

	entry := memory.NewEntry(content, memoryType).
		WithEmbeddings(vector).
		WithRelevance(defaultRelevance)
	for k, v := range metadata {
		entry.Metadata[k] = v
	}
	entry.Metadata[memory.MetaAgentID] = m.agentID
	if m.userID != "" {
		entry.Metadata[memory.MetaUserID] = m.userID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.metadata.StoreMetadata(ctx, entry); err != nil {
		return "", fail(op, KindStorage, err)
	}
	if err := m.vectors.StoreVector(ctx, entry.ID, vector, entry.Metadata); err != nil {
		m.logger.Warn("vector write failed, entry kept for substring search",
			"entry_id", entry.ID, "error", err)
		return "", fail(op, KindStorage, err)
	}

	m.logger.Debug("memory stored", "entry_id", entry.ID, "memory_type", memoryType)
	span.SetAttributes(attribute.String("memory.id", entry.ID))
	return entry.ID, nil
}

// SearchMemories ranks stored entries by similarity to query. memoryTypes
// filters by kind when non-empty; maxResults <= 0 uses the configured
// default. Hits whose metadata row is gone are dropped.
func (m *AgentMemory) SearchMemories(ctx context.Context, query string, memoryTypes []memory.MemoryType, maxResults int) (result *memory.SearchResult, err error) {
	const op = "search"
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, spanSearch, trace.WithAttributes(attribute.String("agent.id", m.agentID)))
	defer func() {
		endSpan(span, err)
		m.recorder.RecordMemoryOperation(op, "", time.Since(start), err)
	}()

	if maxResults <= 0 {
		maxResults = m.maxResults
	}

	vector, err := embedding.EmbedOne(ctx, m.embedder, query)
	if err != nil {
		return nil, fail(op, KindEmbedding, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches, err := m.vectors.SearchVectors(ctx, vector, maxResults, m.threshold)
	if err != nil {
		return nil, fail(op, KindStorage, err)
	}

	entries := make([]*memory.MemoryEntry, 0, len(matches))
	for _, match := range matches {
		entry, found, err := m.metadata.GetMetadata(ctx, match.ID)
		if err != nil {
			m.logger.Warn("metadata lookup failed", "entry_id", match.ID, "error", err)
			continue
		}
		if !found {
			m.logger.Debug("dropping orphaned vector", "entry_id", match.ID)
			continue
		}
		if len(memoryTypes) > 0 && !containsType(memoryTypes, entry.MemoryType) {
			continue
		}
		if !m.owns(entry) {
			continue
		}
		entry.SetRelevance(match.Score)
		entries = append(entries, entry)
	}

	span.SetAttributes(attribute.Int("memory.results", len(entries)))
	return &memory.SearchResult{
		Entries:    entries,
		TotalCount: len(entries),
		SearchTime: time.Since(start),
	}, nil
}

// owns applies the scope rule: the agent must match, or, when a user is
// configured, the user may match instead.
func (m *AgentMemory) owns(entry *memory.MemoryEntry) bool {
	if entry.AgentID() == m.agentID {
		return true
	}
	return m.userID != "" && entry.UserID() == m.userID
}

// GetAgentMemories lists this agent's entries across every memory kind.
func (m *AgentMemory) GetAgentMemories(ctx context.Context, limit int) ([]*memory.MemoryEntry, error) {
	const op = "list_agent"
	if limit <= 0 {
		return []*memory.MemoryEntry{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*memory.MemoryEntry, 0, limit)
	for _, t := range memory.AllTypes {
		typed, err := m.metadata.ListByType(ctx, t, limit)
		if err != nil {
			return nil, fail(op, KindStorage, err)
		}
		for _, entry := range typed {
			if entry.AgentID() == m.agentID {
				entries = append(entries, entry)
			}
		}
		if len(entries) >= limit {
			break
		}
	}
	return storage.Truncate(entries, limit), nil
}

// GetUserMemories lists the configured user's entries. Without a user it
// returns an empty list.
func (m *AgentMemory) GetUserMemories(ctx context.Context, limit int) ([]*memory.MemoryEntry, error) {
	if m.userID == "" {
		return []*memory.MemoryEntry{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	entries, err := m.metadata.ListByUser(ctx, m.userID, limit)
	if err != nil {
		return nil, fail("list_user", KindStorage, err)
	}
	return entries, nil
}

// GetMemory returns one entry by ID.
func (m *AgentMemory) GetMemory(ctx context.Context, id string) (*memory.MemoryEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, found, err := m.metadata.GetMetadata(ctx, id)
	if err != nil {
		return nil, false, fail("get", KindStorage, err)
	}
	return entry, found, nil
}

// DeleteMemory removes id from both stores. Both deletes are attempted; the
// first failure is returned. Deleting an unknown ID succeeds.
func (m *AgentMemory) DeleteMemory(ctx context.Context, id string) (err error) {
	const op = "delete"
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, spanDelete, trace.WithAttributes(attribute.String("memory.id", id)))
	defer func() {
		endSpan(span, err)
		m.recorder.RecordMemoryOperation(op, "", time.Since(start), err)
	}()

	if id == "" {
		return fail(op, KindValidation, memory.ErrInvalidEntryID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	metaErr := m.metadata.DeleteMetadata(ctx, id)
	vecErr := m.vectors.DeleteVector(ctx, id)
	if metaErr != nil {
		if vecErr != nil {
			m.logger.Warn("vector delete failed", "entry_id", id, "error", vecErr)
		}
		return fail(op, KindStorage, metaErr)
	}
	if vecErr != nil {
		return fail(op, KindStorage, vecErr)
	}
	return nil
}

// UpdateRelevance records explicit feedback on an entry.
func (m *AgentMemory) UpdateRelevance(ctx context.Context, id string, score float64) error {
	const op = "update_relevance"

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, found, err := m.metadata.GetMetadata(ctx, id)
	if err != nil {
		return fail(op, KindStorage, err)
	}
	if !found {
		return fail(op, KindStorage, storage.NewError(storage.KindNotFound, "facade", op, fmt.Errorf("entry %q", id)))
	}
	entry.SetRelevance(score)
	if err := m.metadata.UpdateMetadata(ctx, entry); err != nil {
		return fail(op, KindStorage, err)
	}
	return nil
}

// Close closes both stores and returns the first error.
func (m *AgentMemory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	vecErr := m.vectors.Close()
	metaErr := m.metadata.Close()
	if vecErr != nil {
		return vecErr
	}
	return metaErr
}

func containsType(types []memory.MemoryType, t memory.MemoryType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	} else {
		span.SetStatus(otelcodes.Ok, "ok")
	}
	span.End()
}

// Package engine implements the four in-process memory engines (working,
// semantic, episodic, procedural) and the AgenticMemoryManager that routes
// stores between them and fans retrieval out across them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goclaw/agentmemory/pkg/embedding"
	"github.com/goclaw/agentmemory/pkg/memory"
)

// StrategyKind names a retrieval strategy.
type StrategyKind string

const (
	StrategySemantic      StrategyKind = "semantic"
	StrategyEpisodic      StrategyKind = "episodic"
	StrategyProcedural    StrategyKind = "procedural"
	StrategyRecentContext StrategyKind = "recent_context"
)

// QueryStrategy is one retrieval step chosen by intent analysis.
type QueryStrategy struct {
	Kind        StrategyKind `json:"kind"`
	MaxResults  int          `json:"max_results,omitempty"`
	BoostRecent bool         `json:"boost_recent,omitempty"`
	UserID      string       `json:"user_id,omitempty"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
}

// StrategyFailure records a strategy that contributed nothing because it
// failed.
type StrategyFailure struct {
	Strategy StrategyKind `json:"strategy"`
	Err      error        `json:"-"`
}

func (f StrategyFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Strategy, f.Err)
}

// RetrievalResult is the ranked outcome of AgenticRetrieve.
type RetrievalResult struct {
	Entries    []*memory.MemoryEntry `json:"entries"`
	TotalCount int                   `json:"total_count"`
	SearchTime time.Duration         `json:"search_time"`
	Strategies []QueryStrategy       `json:"strategies"`
	Failures   []StrategyFailure     `json:"-"`
}

// StorageKind names a destination chosen by content analysis.
type StorageKind string

const (
	StoreWorking    StorageKind = "working"
	StoreSemantic   StorageKind = "semantic"
	StoreProcedural StorageKind = "procedural"
	StoreEpisodic   StorageKind = "episodic"
)

// StorageStrategy is one destination for IntelligentStore.
type StorageStrategy struct {
	Kind          StorageKind
	Role          Role
	ProcedureName string
	Steps         []string
}

const (
	workingContextID      = "working_context"
	workingContextScore   = 0.8
	workingStoreScore     = 0.7
	recentContextTokens   = 500
	consolidationTokens   = 2000
	rerankDecayHours      = 168.0
	keywordBonus          = 0.3
	maxPerKind            = 3
	maxRerankedResults    = 10
	agentContextPerKind   = 3
	agentContextPatterns  = 3
	defaultProcedureName  = "unnamed_procedure"
	consolidationSource   = "working_memory_consolidation"
	MetaRole              = "role"
	MetaKnowledgeType     = "knowledge_type"
	MetaSource            = "source"
	defaultRerankRelevant = 0.5
)

var kindWeights = map[memory.MemoryType]float64{
	memory.Working:    1.2,
	memory.Episodic:   1.1,
	memory.Semantic:   1.0,
	memory.Procedural: 1.15,
}

// Config holds manager limits.
type Config struct {
	MaxWorkingMessages    int
	WorkingTokenBudget    int
	SimilarityThreshold   float64
	ImportanceThreshold   float64
	ConsolidationInterval time.Duration
	ConsolidationEnabled  bool
}

// DefaultConfig returns the stock limits with consolidation enabled.
func DefaultConfig() Config {
	return Config{
		MaxWorkingMessages:    50,
		WorkingTokenBudget:    4000,
		SimilarityThreshold:   DefaultSimilarityThreshold,
		ImportanceThreshold:   0.3,
		ConsolidationInterval: time.Hour,
		ConsolidationEnabled:  true,
	}
}

// AgenticMemoryManager orchestrates the four memory engines.
type AgenticMemoryManager struct {
	working    *SmartMessageBuffer
	semantic   *SemanticMemory
	episodic   *EpisodicMemory
	procedural *ProceduralMemory

	storeMu sync.Mutex

	mu                    sync.Mutex
	consolidationEnabled  bool
	consolidationInterval time.Duration
	lastConsolidation     time.Time

	logger   Logger
	recorder Recorder
	now      func() time.Time
}

// NewAgenticMemoryManager builds the four engines around one embedding
// provider.
func NewAgenticMemoryManager(embedder embedding.Provider, cfg Config, opts ...Option) *AgenticMemoryManager {
	def := DefaultConfig()
	if cfg.MaxWorkingMessages <= 0 {
		cfg.MaxWorkingMessages = def.MaxWorkingMessages
	}
	if cfg.WorkingTokenBudget <= 0 {
		cfg.WorkingTokenBudget = def.WorkingTokenBudget
	}
	if cfg.ConsolidationInterval <= 0 {
		cfg.ConsolidationInterval = def.ConsolidationInterval
	}

	m := &AgenticMemoryManager{
		working:               NewSmartMessageBuffer(cfg.MaxWorkingMessages, cfg.WorkingTokenBudget, cfg.ImportanceThreshold),
		semantic:              NewSemanticMemory(embedder, cfg.SimilarityThreshold),
		episodic:              NewEpisodicMemory(embedder),
		procedural:            NewProceduralMemory(),
		consolidationEnabled:  cfg.ConsolidationEnabled,
		consolidationInterval: cfg.ConsolidationInterval,
		logger:                nopLogger{},
		recorder:              nopRecorder{},
		now:                   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.semantic.now = m.now
	m.episodic.now = m.now
	m.procedural.now = m.now
	return m
}

// Working returns the working-memory buffer.
func (m *AgenticMemoryManager) Working() *SmartMessageBuffer { return m.working }

// Semantic returns the semantic engine.
func (m *AgenticMemoryManager) Semantic() *SemanticMemory { return m.semantic }

// Episodic returns the episodic engine.
func (m *AgenticMemoryManager) Episodic() *EpisodicMemory { return m.episodic }

// Procedural returns the procedural engine.
func (m *AgenticMemoryManager) Procedural() *ProceduralMemory { return m.procedural }

// AnalyzeQueryIntent picks retrieval strategies from keywords in the query.
// Recent context is always included. When nothing else matched, a
// recency-boosted semantic lookup is added first.
func (m *AgenticMemoryManager) AnalyzeQueryIntent(query, userID string) []QueryStrategy {
	q := strings.ToLower(query)
	var strategies []QueryStrategy

	if containsAny(q, "what is", "explain", "define") {
		strategies = append(strategies, QueryStrategy{Kind: StrategySemantic, MaxResults: 5})
	}
	if containsAny(q, "remember", "last time", "before") {
		strategies = append(strategies, QueryStrategy{Kind: StrategyEpisodic, MaxResults: 3, UserID: userID})
	}
	if containsAny(q, "how to", "steps", "process") {
		strategies = append(strategies, QueryStrategy{Kind: StrategyProcedural})
	}
	strategies = append(strategies, QueryStrategy{Kind: StrategyRecentContext, MaxTokens: recentContextTokens})

	if len(strategies) == 1 {
		strategies = append([]QueryStrategy{{Kind: StrategySemantic, MaxResults: 3, BoostRecent: true}}, strategies...)
	}
	return strategies
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// AgenticRetrieve runs every strategy chosen for query concurrently, then
// reranks the merged entries. A failing strategy contributes no entries and
// is reported in Failures.
func (m *AgenticMemoryManager) AgenticRetrieve(ctx context.Context, query, userID, conversation string) (*RetrievalResult, error) {
	start := time.Now()
	ctx, span := managerTracer().Start(ctx, spanAgenticRetrieve,
		trace.WithAttributes(
			attribute.Int("query.length", len(query)),
			attribute.Bool("user.present", userID != ""),
		),
	)
	defer span.End()

	strategies := m.AnalyzeQueryIntent(query, userID)
	if conversation != "" {
		m.logger.Debug("retrieval conversation context ignored by intent analysis", "context_length", len(conversation))
	}

	type outcome struct {
		entries []*memory.MemoryEntry
		err     error
	}
	outcomes := make([]outcome, len(strategies))

	var wg sync.WaitGroup
	for i, s := range strategies {
		wg.Add(1)
		go func(i int, s QueryStrategy) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = outcome{err: fmt.Errorf("%w: %v", ErrStrategyPanic, r)}
				}
			}()
			entries, err := m.runStrategy(ctx, s, query)
			outcomes[i] = outcome{entries: entries, err: err}
		}(i, s)
	}
	wg.Wait()

	var (
		merged   []*memory.MemoryEntry
		failures []StrategyFailure
	)
	for i, o := range outcomes {
		kind := strategies[i].Kind
		m.recorder.RecordRetrievalStrategy(string(kind), o.err)
		if o.err != nil {
			m.logger.Warn("retrieval strategy failed", "strategy", kind, "error", o.err)
			failures = append(failures, StrategyFailure{Strategy: kind, Err: o.err})
			continue
		}
		merged = append(merged, o.entries...)
	}

	entries := m.RerankAndDeduplicate(merged, query)
	result := &RetrievalResult{
		Entries:    entries,
		TotalCount: len(entries),
		SearchTime: time.Since(start),
		Strategies: strategies,
		Failures:   failures,
	}

	span.SetAttributes(
		attribute.Int("strategies.count", len(strategies)),
		attribute.Int("strategies.failed", len(failures)),
		attribute.Int("results.count", len(entries)),
	)
	if len(failures) > 0 {
		span.SetStatus(otelcodes.Error, "partial retrieval failure")
	} else {
		span.SetStatus(otelcodes.Ok, "")
	}
	m.recorder.RecordMemoryOperation("agentic_retrieve", "", time.Since(start), nil)
	return result, nil
}

func (m *AgenticMemoryManager) runStrategy(ctx context.Context, s QueryStrategy, query string) ([]*memory.MemoryEntry, error) {
	ctx, span := managerTracer().Start(ctx, spanRetrieveStrategy,
		trace.WithAttributes(attribute.String("strategy", string(s.Kind))),
	)
	defer span.End()

	var (
		entries []*memory.MemoryEntry
		err     error
	)
	switch s.Kind {
	case StrategySemantic:
		entries, err = m.semantic.SearchKnowledge(ctx, query, s.MaxResults, s.BoostRecent)
	case StrategyEpisodic:
		entries, err = m.episodic.SearchExperiences(ctx, s.UserID, query, s.MaxResults)
	case StrategyProcedural:
		entries = m.procedural.MatchProcedures(query)
	case StrategyRecentContext:
		if text := m.working.GetContext(s.MaxTokens); text != "" {
			e := memory.NewEntry(text, memory.Working).WithRelevance(workingContextScore)
			e.ID = workingContextID
			e.Timestamp = m.now().UTC()
			entries = []*memory.MemoryEntry{e}
		}
	default:
		err = fmt.Errorf("unknown retrieval strategy %q", s.Kind)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("results.count", len(entries)))
	span.SetStatus(otelcodes.Ok, "")
	return entries, nil
}

type rankedEntry struct {
	entry *memory.MemoryEntry
	score float64
}

// RerankAndDeduplicate drops exact-content duplicates, scores each entry by
// prior relevance, weekly recency, memory kind and query keyword overlap,
// and keeps at most three entries per kind and ten overall. Returned entries
// are copies carrying their final score as relevance.
func (m *AgenticMemoryManager) RerankAndDeduplicate(entries []*memory.MemoryEntry, query string) []*memory.MemoryEntry {
	now := m.now()
	words := strings.Fields(strings.ToLower(query))

	seen := make(map[string]bool, len(entries))
	ranked := make([]rankedEntry, 0, len(entries))
	for _, e := range entries {
		if e == nil || seen[e.Content] {
			continue
		}
		seen[e.Content] = true

		score := e.RelevanceOr(defaultRerankRelevant)
		hours := math.Max(0, now.Sub(e.Timestamp).Hours())
		score *= 1 + math.Exp(-hours/rerankDecayHours)*0.2
		if w, ok := kindWeights[e.MemoryType]; ok {
			score *= w
		}
		if len(words) > 0 {
			content := strings.ToLower(e.Content)
			var matched int
			for _, w := range words {
				if strings.Contains(content, w) {
					matched++
				}
			}
			score += float64(matched) / float64(len(words)) * keywordBonus
		}
		ranked = append(ranked, rankedEntry{entry: e, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	perKind := make(map[memory.MemoryType]int)
	out := make([]*memory.MemoryEntry, 0, maxRerankedResults)
	for _, r := range ranked {
		if perKind[r.entry.MemoryType] >= maxPerKind {
			continue
		}
		perKind[r.entry.MemoryType]++
		e := r.entry.Clone()
		e.SetRelevance(r.score)
		out = append(out, e)
		if len(out) >= maxRerankedResults {
			break
		}
	}
	return out
}

// AnalyzeContentForStorage decides where content goes. Working memory is
// always first. Facts and definitions go to semantic memory, step lists to
// procedural memory, and anything else to episodic memory.
func (m *AgenticMemoryManager) AnalyzeContentForStorage(content string, metadata map[string]string) []StorageStrategy {
	lower := strings.ToLower(content)

	role := RoleUser
	if raw, ok := metadata[MetaRole]; ok {
		if r, err := ParseRole(raw); err == nil {
			role = r
		} else {
			m.logger.Warn("unknown role in metadata, storing as user", "role", raw)
		}
	}
	strategies := []StorageStrategy{{Kind: StoreWorking, Role: role}}

	_, hasKnowledgeType := metadata[MetaKnowledgeType]
	if containsAny(lower, "fact:", "definition:") || hasKnowledgeType {
		strategies = append(strategies, StorageStrategy{Kind: StoreSemantic})
	}

	if containsAny(lower, "step", "process", "how to") {
		if steps := ExtractSteps(content); len(steps) > 0 {
			name := metadata[MetaProcedureName]
			if name == "" {
				name = defaultProcedureName
			}
			strategies = append(strategies, StorageStrategy{Kind: StoreProcedural, ProcedureName: name, Steps: steps})
		}
	}

	if len(strategies) == 1 {
		strategies = append(strategies, StorageStrategy{Kind: StoreEpisodic})
	}
	return strategies
}

// ExtractSteps returns the lines of content that start with a digit 1-9 or
// mention "step", trimmed.
func ExtractSteps(content string) []string {
	var steps []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if (trimmed[0] >= '1' && trimmed[0] <= '9') || strings.Contains(strings.ToLower(trimmed), "step") {
			steps = append(steps, trimmed)
		}
	}
	return steps
}

// IntelligentStore writes content to every engine chosen by
// AnalyzeContentForStorage and returns the IDs it produced, then runs
// consolidation when due. Failed destinations are skipped and reported
// together in the returned error.
func (m *AgenticMemoryManager) IntelligentStore(ctx context.Context, content string, metadata map[string]string, userID string) ([]string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	m.storeMu.Lock()
	defer m.storeMu.Unlock()

	ctx, span := managerTracer().Start(ctx, spanIntelligentStore,
		trace.WithAttributes(
			attribute.Int("content.length", len(content)),
			attribute.Bool("user.present", userID != ""),
		),
	)
	defer span.End()

	var (
		ids  []string
		errs []error
	)
	for _, s := range m.AnalyzeContentForStorage(content, metadata) {
		start := time.Now()
		id, memType, err := m.store(ctx, s, content, metadata, userID)
		if memType != "" {
			m.recorder.RecordMemoryOperation("intelligent_store", memType, time.Since(start), err)
		}
		if err != nil {
			m.logger.Warn("memory store failed", "destination", s.Kind, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Kind, err))
			continue
		}
		if id != "" {
			ids = append(ids, id)
		}
	}
	m.recorder.SetWorkingMessages(m.working.Len())

	if m.ShouldConsolidate() {
		if err := m.Consolidate(ctx, userID); err != nil {
			errs = append(errs, fmt.Errorf("consolidate: %w", err))
		}
	}

	span.SetAttributes(attribute.Int("stored.count", len(ids)))
	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, "partial store failure")
	} else {
		span.SetStatus(otelcodes.Ok, "")
	}
	return ids, err
}

func (m *AgenticMemoryManager) store(ctx context.Context, s StorageStrategy, content string, metadata map[string]string, userID string) (string, string, error) {
	switch s.Kind {
	case StoreWorking:
		id, err := m.working.AddMessageWithImportance(string(s.Role), content, workingStoreScore)
		return id, memory.Working.String(), err
	case StoreSemantic:
		id, err := m.semantic.StoreKnowledge(ctx, content, metadata)
		return id, memory.Semantic.String(), err
	case StoreProcedural:
		id, err := m.procedural.StoreProcedure(s.ProcedureName, s.Steps)
		return id, memory.Procedural.String(), err
	case StoreEpisodic:
		if userID == "" {
			return "", "", nil
		}
		id, err := m.episodic.StoreEpisode(ctx, userID, content, metadata)
		return id, memory.Episodic.String(), err
	}
	return "", "", fmt.Errorf("unknown storage destination %q", s.Kind)
}

// SetConsolidationEnabled toggles consolidation.
func (m *AgenticMemoryManager) SetConsolidationEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consolidationEnabled = enabled
}

// ConsolidationEnabled reports whether consolidation is on.
func (m *AgenticMemoryManager) ConsolidationEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consolidationEnabled
}

// LastConsolidation returns when consolidation last ran, or false if never.
func (m *AgenticMemoryManager) LastConsolidation() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastConsolidation, !m.lastConsolidation.IsZero()
}

// ShouldConsolidate reports whether consolidation is enabled and either has
// never run or last ran more than one interval ago.
func (m *AgenticMemoryManager) ShouldConsolidate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.consolidationEnabled {
		return false
	}
	if m.lastConsolidation.IsZero() {
		return true
	}
	return m.now().Sub(m.lastConsolidation) > m.consolidationInterval
}

// Consolidate copies the rendered working context into episodic memory for
// userID, summarizes the working buffer when it is more than three quarters
// full and records the run time. Without a user only the summarization
// step runs.
func (m *AgenticMemoryManager) Consolidate(ctx context.Context, userID string) (err error) {
	start := time.Now()
	ctx, span := managerTracer().Start(ctx, spanConsolidate)
	defer func() {
		m.recorder.RecordConsolidation(time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		} else {
			span.SetStatus(otelcodes.Ok, "")
		}
		span.End()
	}()

	m.logger.Debug("memory consolidation started", "user_id", userID)

	if userID != "" {
		if text := m.working.GetContext(consolidationTokens); text != "" {
			meta := map[string]string{
				MetaSource:    consolidationSource,
				MetaSessionID: uuid.New().String(),
			}
			if _, err := m.episodic.StoreEpisode(ctx, userID, text, meta); err != nil {
				return err
			}
		}
	}

	summarized := m.working.AutoSummarize()

	m.mu.Lock()
	m.lastConsolidation = m.now()
	m.mu.Unlock()

	m.logger.Info("memory consolidation completed", "user_id", userID, "summarized", summarized)
	return nil
}

// GetAgentContext retrieves memories for query and renders them as a text
// block for prompt injection, grouped by kind and followed by the user's
// behavior patterns.
func (m *AgenticMemoryManager) GetAgentContext(ctx context.Context, query, userID string) (string, error) {
	result, err := m.AgenticRetrieve(ctx, query, userID, "")
	if err != nil {
		return "", err
	}

	grouped := make(map[memory.MemoryType][]*memory.MemoryEntry)
	for _, e := range result.Entries {
		grouped[e.MemoryType] = append(grouped[e.MemoryType], e)
	}

	var b strings.Builder
	b.WriteString("=== AGENT MEMORY CONTEXT ===\n\n")
	for _, t := range memory.AllTypes {
		entries := grouped[t]
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(&b, "--- %s Memory ---\n", t)
		for i, e := range entries {
			if i == agentContextPerKind {
				break
			}
			fmt.Fprintf(&b, "• %s\n", e.Content)
		}
		b.WriteString("\n")
	}

	if userID != "" {
		patterns := m.episodic.IdentifyUserPatterns(userID)
		if len(patterns) > 0 {
			keys := make([]string, 0, len(patterns))
			for k := range patterns {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			if len(keys) > agentContextPatterns {
				keys = keys[:agentContextPatterns]
			}
			b.WriteString("--- User Patterns ---\n")
			for _, k := range keys {
				fmt.Fprintf(&b, "• %s: %.2f\n", k, patterns[k])
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("=== END MEMORY CONTEXT ===\n")
	return b.String(), nil
}

package engine

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goclaw/agentmemory/pkg/embedding"
	"github.com/goclaw/agentmemory/pkg/memory"
)

const (
	// DefaultSimilarityThreshold is the semantic search cutoff.
	DefaultSimilarityThreshold = 0.7

	relatedSearchLimit     = 5
	relatedSearchThreshold = 0.7
	relatedEdgeThreshold   = 0.6
	traversalFanout        = 3
	semanticDefaultScore   = 0.5
	defaultNodeType        = "general"
	relationSemanticMatch  = "semantic_similarity"
	semanticEngineName     = "semantic"
)

// Connection is a weighted, directed edge between two knowledge nodes.
type Connection struct {
	TargetID     string  `json:"target_id"`
	RelationType string  `json:"relation_type"`
	Strength     float64 `json:"strength"`
}

// KnowledgeNode is one fact in the semantic graph.
type KnowledgeNode struct {
	Entry       *memory.MemoryEntry `json:"entry"`
	NodeType    string              `json:"node_type"`
	Connections []Connection        `json:"connections"`
}

func (n *KnowledgeNode) clone() *KnowledgeNode {
	return &KnowledgeNode{
		Entry:       n.Entry.Clone(),
		NodeType:    n.NodeType,
		Connections: append([]Connection(nil), n.Connections...),
	}
}

// SemanticMemory stores vectorized facts in an id-indexed graph. Edges are
// plain id references and may outlive the node they point to.
type SemanticMemory struct {
	mu        sync.RWMutex
	embedder  embedding.Provider
	threshold float64
	nodes     map[string]*KnowledgeNode
	order     []string
	now       func() time.Time
}

// NewSemanticMemory creates an empty semantic store. A threshold outside
// (0,1] falls back to DefaultSimilarityThreshold.
func NewSemanticMemory(embedder embedding.Provider, threshold float64) *SemanticMemory {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	return &SemanticMemory{
		embedder:  embedder,
		threshold: threshold,
		nodes:     make(map[string]*KnowledgeNode),
		now:       time.Now,
	}
}

func (s *SemanticMemory) embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, &EmbeddingError{Engine: semanticEngineName, Cause: ErrNoEmbedder}
	}
	v, err := embedding.EmbedOne(ctx, s.embedder, text)
	if err != nil {
		return nil, &EmbeddingError{Engine: semanticEngineName, Cause: err}
	}
	return v, nil
}

// StoreKnowledge embeds content, links it to up to five similar facts and
// returns the new node ID. The "type" metadata key sets the node type.
func (s *SemanticMemory) StoreKnowledge(ctx context.Context, content string, metadata map[string]string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	vector, err := s.embed(ctx, content)
	if err != nil {
		return "", err
	}

	entry := memory.NewEntry(content, memory.Semantic).WithEmbeddings(vector).WithRelevance(semanticDefaultScore)
	entry.Metadata = memory.CloneMetadata(metadata)
	if entry.Metadata == nil {
		entry.Metadata = make(map[string]string)
	}
	entry.Timestamp = s.now().UTC()

	nodeType := entry.Metadata["type"]
	if nodeType == "" {
		nodeType = defaultNodeType
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var connections []Connection
	for _, m := range s.rank(vector, relatedSearchThreshold, relatedSearchLimit, false) {
		if m.similarity > relatedEdgeThreshold {
			connections = append(connections, Connection{
				TargetID:     m.node.Entry.ID,
				RelationType: relationSemanticMatch,
				Strength:     m.similarity,
			})
		}
	}

	s.nodes[entry.ID] = &KnowledgeNode{Entry: entry, NodeType: nodeType, Connections: connections}
	s.order = append(s.order, entry.ID)
	return entry.ID, nil
}

type scoredNode struct {
	node       *KnowledgeNode
	similarity float64
	score      float64
}

// rank scores every node against vector. Callers hold mu.
func (s *SemanticMemory) rank(vector []float32, threshold float64, limit int, boostRecent bool) []scoredNode {
	now := s.now()
	var out []scoredNode
	for _, id := range s.order {
		n := s.nodes[id]
		sim := memory.CosineSimilarity(vector, n.Entry.Embeddings)
		if sim < threshold {
			continue
		}
		score := sim
		if boostRecent {
			hours := now.Sub(n.Entry.Timestamp).Hours()
			if hours < 0 {
				hours = 0
			}
			score *= 1 + math.Exp(-hours/24)*0.2
		}
		if n.Entry.RelevanceScore != nil {
			score *= 1 + *n.Entry.RelevanceScore*0.1
		}
		out = append(out, scoredNode{node: n, similarity: sim, score: score})
	}
	// Stable sort keeps insertion order among equal scores.
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SearchKnowledge returns up to maxResults facts whose similarity to query
// meets the threshold, best first. Each returned entry is a copy whose
// relevance score is the final ranking score.
func (s *SemanticMemory) SearchKnowledge(ctx context.Context, query string, maxResults int, boostRecent bool) ([]*memory.MemoryEntry, error) {
	vector, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ranked := s.rank(vector, s.threshold, maxResults, boostRecent)
	out := make([]*memory.MemoryEntry, 0, len(ranked))
	for _, r := range ranked {
		e := r.node.Entry.Clone()
		e.SetRelevance(r.score)
		out = append(out, e)
	}
	return out, nil
}

// UpdateKnowledge replaces a fact's content, re-embeds it and resets its
// timestamp. Existing edges are kept.
func (s *SemanticMemory) UpdateKnowledge(ctx context.Context, id, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	s.mu.RLock()
	_, ok := s.nodes[id]
	s.mu.RUnlock()
	if !ok {
		return &NotFoundError{Engine: semanticEngineName, ID: id}
	}

	vector, err := s.embed(ctx, content)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return &NotFoundError{Engine: semanticEngineName, ID: id}
	}
	n.Entry.Content = content
	n.Entry.Embeddings = vector
	n.Entry.Timestamp = s.now().UTC()
	return nil
}

// UpdateRelevance records feedback on a fact. The score feeds the prior
// relevance boost of later searches.
func (s *SemanticMemory) UpdateRelevance(id string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return &NotFoundError{Engine: semanticEngineName, ID: id}
	}
	n.Entry.SetRelevance(score)
	return nil
}

// GetKnowledge returns a copy of the node, or false.
func (s *SemanticMemory) GetKnowledge(id string) (*KnowledgeNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return n.clone(), true
}

// DeleteKnowledge removes a node. Edges pointing at it are left in place.
func (s *SemanticMemory) DeleteKnowledge(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[id]; !ok {
		return false
	}
	delete(s.nodes, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// GetExpandedContext walks the graph depth-first from id, following at most
// the three strongest edges of each node, and returns the content of every
// visited node in visitation order. Missing targets are skipped.
func (s *SemanticMemory) GetExpandedContext(id string, maxDepth int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	visited := make(map[string]bool)
	var out []string
	s.traverse(id, maxDepth, visited, &out)
	return out
}

func (s *SemanticMemory) traverse(id string, depth int, visited map[string]bool, out *[]string) {
	if depth <= 0 || visited[id] {
		return
	}
	visited[id] = true

	n, ok := s.nodes[id]
	if !ok {
		return
	}
	*out = append(*out, n.Entry.Content)

	edges := append([]Connection(nil), n.Connections...)
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].Strength > edges[j].Strength })
	if len(edges) > traversalFanout {
		edges = edges[:traversalFanout]
	}
	for _, c := range edges {
		s.traverse(c.TargetID, depth-1, visited, out)
	}
}

// Connect adds a directed edge between two existing nodes.
func (s *SemanticMemory) Connect(fromID, toID, relation string, strength float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, ok := s.nodes[fromID]
	if !ok {
		return &NotFoundError{Engine: semanticEngineName, ID: fromID}
	}
	if _, ok := s.nodes[toID]; !ok {
		return &NotFoundError{Engine: semanticEngineName, ID: toID}
	}
	strength = math.Max(0, math.Min(1, strength))
	from.Connections = append(from.Connections, Connection{TargetID: toID, RelationType: relation, Strength: strength})
	return nil
}

// Len returns the number of stored facts.
func (s *SemanticMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goclaw/agentmemory/pkg/embedding"
	"github.com/goclaw/agentmemory/pkg/memory"
)

const (
	episodicEngineName = "episodic"

	// DefaultSessionID is used when an episode carries no session_id.
	DefaultSessionID = "default_session"

	MetaSessionID      = "session_id"
	MetaEmotion        = "emotion"
	MetaUserFeedback   = "user_feedback"
	MetaTaskCompletion = "task_completion"

	baseImportance        = 0.5
	keywordImportance     = 0.1
	feedbackImportance    = 0.2
	completionImportance  = 0.15
	episodeLinkThreshold  = 0.7
	experienceThreshold   = 0.5
	importanceDecayHours  = 168.0
	minEpisodesForCadence = 3
)

var importanceKeywords = []string{"error", "success", "problem", "solution", "learn", "remember"}

// Episode is one entry on a user's timeline.
type Episode struct {
	Entry           *memory.MemoryEntry `json:"entry"`
	UserID          string              `json:"user_id"`
	SessionID       string              `json:"session_id"`
	Emotion         string              `json:"emotion,omitempty"`
	Importance      float64             `json:"importance"`
	RelatedEpisodes []string            `json:"related_episodes"`
}

func (e *Episode) clone() *Episode {
	c := *e
	c.Entry = e.Entry.Clone()
	c.RelatedEpisodes = append([]string(nil), e.RelatedEpisodes...)
	return &c
}

// ComputeImportance scores content between 0.5 and 1.0 from trigger words and
// the user_feedback and task_completion metadata keys.
func ComputeImportance(content string, metadata map[string]string) float64 {
	score := baseImportance
	lower := strings.ToLower(content)
	for _, kw := range importanceKeywords {
		if strings.Contains(lower, kw) {
			score += keywordImportance
		}
	}
	if _, ok := metadata[MetaUserFeedback]; ok {
		score += feedbackImportance
	}
	if _, ok := metadata[MetaTaskCompletion]; ok {
		score += completionImportance
	}
	return math.Min(score, 1.0)
}

// EpisodicMemory keeps a per-user timeline of episodes.
type EpisodicMemory struct {
	mu        sync.RWMutex
	embedder  embedding.Provider
	episodes  map[string]*Episode
	timelines map[string][]string
	now       func() time.Time
}

// NewEpisodicMemory creates an empty episodic store.
func NewEpisodicMemory(embedder embedding.Provider) *EpisodicMemory {
	return &EpisodicMemory{
		embedder:  embedder,
		episodes:  make(map[string]*Episode),
		timelines: make(map[string][]string),
		now:       time.Now,
	}
}

func (m *EpisodicMemory) embed(ctx context.Context, text string) ([]float32, error) {
	if m.embedder == nil {
		return nil, &EmbeddingError{Engine: episodicEngineName, Cause: ErrNoEmbedder}
	}
	v, err := embedding.EmbedOne(ctx, m.embedder, text)
	if err != nil {
		return nil, &EmbeddingError{Engine: episodicEngineName, Cause: err}
	}
	return v, nil
}

// StoreEpisode records an interaction for userID now, with importance
// computed from its content and metadata.
func (m *EpisodicMemory) StoreEpisode(ctx context.Context, userID, content string, metadata map[string]string) (string, error) {
	return m.AddEpisode(ctx, userID, content, metadata, m.now(), ComputeImportance(content, metadata))
}

// AddEpisode records an interaction with an explicit timestamp and
// importance, then links it to similar episodes of the same user.
func (m *EpisodicMemory) AddEpisode(ctx context.Context, userID, content string, metadata map[string]string, at time.Time, importance float64) (string, error) {
	if userID == "" {
		return "", ErrUserRequired
	}
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	vector, err := m.embed(ctx, content)
	if err != nil {
		return "", err
	}

	entry := memory.NewEntry(content, memory.Episodic).WithEmbeddings(vector)
	if metadata != nil {
		entry.Metadata = memory.CloneMetadata(metadata)
	}
	entry.Timestamp = at.UTC()
	sessionID := entry.Metadata[MetaSessionID]
	if sessionID == "" {
		sessionID = DefaultSessionID
		entry.Metadata[MetaSessionID] = sessionID
	}
	entry.Metadata[memory.MetaUserID] = userID

	ep := &Episode{
		Entry:      entry,
		UserID:     userID,
		SessionID:  sessionID,
		Emotion:    entry.Metadata[MetaEmotion],
		Importance: math.Max(0, math.Min(1, importance)),
	}
	entry.Metadata["importance"] = fmt.Sprintf("%.2f", ep.Importance)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.episodes[entry.ID] = ep
	m.insertTimeline(userID, entry.ID)
	m.link(ep)
	return entry.ID, nil
}

// insertTimeline keeps a user's timeline ordered by timestamp, appending
// episodes with equal timestamps after existing ones. Callers hold mu.
func (m *EpisodicMemory) insertTimeline(userID, id string) {
	tl := m.timelines[userID]
	at := m.episodes[id].Entry.Timestamp
	i := sort.Search(len(tl), func(i int) bool {
		return m.episodes[tl[i]].Entry.Timestamp.After(at)
	})
	tl = append(tl, "")
	copy(tl[i+1:], tl[i:])
	tl[i] = id
	m.timelines[userID] = tl
}

// link records the ids of the user's other episodes that are similar to ep.
// Callers hold mu.
func (m *EpisodicMemory) link(ep *Episode) {
	var related []string
	for _, id := range m.timelines[ep.UserID] {
		if id == ep.Entry.ID {
			continue
		}
		other := m.episodes[id]
		if memory.CosineSimilarity(ep.Entry.Embeddings, other.Entry.Embeddings) > episodeLinkThreshold {
			related = append(related, id)
		}
	}
	ep.RelatedEpisodes = related
}

// timeline returns the user's episodes, oldest first. Callers hold mu.
func (m *EpisodicMemory) timeline(userID string) []*Episode {
	ids := m.timelines[userID]
	out := make([]*Episode, 0, len(ids))
	for _, id := range ids {
		if ep, ok := m.episodes[id]; ok {
			out = append(out, ep)
		}
	}
	return out
}

// GetEpisode returns a copy of one episode.
func (m *EpisodicMemory) GetEpisode(id string) (*Episode, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ep, ok := m.episodes[id]
	if !ok {
		return nil, false
	}
	return ep.clone(), true
}

// GetUserHistory returns every episode of a user, oldest first.
func (m *EpisodicMemory) GetUserHistory(userID string) []*Episode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tl := m.timeline(userID)
	out := make([]*Episode, len(tl))
	for i, ep := range tl {
		out[i] = ep.clone()
	}
	return out
}

// GetEpisodesInTimeframe returns the user's episodes with start <= t <= end,
// oldest first.
func (m *EpisodicMemory) GetEpisodesInTimeframe(userID string, start, end time.Time) []*Episode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Episode
	for _, ep := range m.timeline(userID) {
		ts := ep.Entry.Timestamp
		if ts.Before(start) || ts.After(end) {
			continue
		}
		out = append(out, ep.clone())
	}
	return out
}

// GetRecentImportantEpisodes ranks the user's episodes by importance decayed
// with a one-week time constant and returns the top limit.
func (m *EpisodicMemory) GetRecentImportantEpisodes(userID string, limit int) []*Episode {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	type weighted struct {
		ep     *Episode
		weight float64
	}
	var ranked []weighted
	for _, ep := range m.timeline(userID) {
		hours := math.Max(0, now.Sub(ep.Entry.Timestamp).Hours())
		ranked = append(ranked, weighted{ep: ep, weight: ep.Importance * math.Exp(-hours/importanceDecayHours)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].weight > ranked[j].weight })
	if limit >= 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]*Episode, len(ranked))
	for i, r := range ranked {
		out[i] = r.ep.clone()
	}
	return out
}

// GetEpisodesByEmotion returns up to limit episodes tagged with emotion,
// compared case-insensitively, oldest first. A limit <= 0 means no limit.
func (m *EpisodicMemory) GetEpisodesByEmotion(userID, emotion string, limit int) []*Episode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Episode
	for _, ep := range m.timeline(userID) {
		if ep.Emotion == "" || !strings.EqualFold(ep.Emotion, emotion) {
			continue
		}
		out = append(out, ep.clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// SearchExperiences returns the user's episodes whose similarity to query
// exceeds 0.5, scored by similarity times importance, best first. Each
// returned entry carries that score as its relevance.
func (m *EpisodicMemory) SearchExperiences(ctx context.Context, userID, query string, limit int) ([]*memory.MemoryEntry, error) {
	if userID == "" {
		return []*memory.MemoryEntry{}, nil
	}
	vector, err := m.embed(ctx, query)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		entry *memory.MemoryEntry
		score float64
	}
	var hits []scored
	for _, ep := range m.timeline(userID) {
		sim := memory.CosineSimilarity(vector, ep.Entry.Embeddings)
		if sim <= experienceThreshold {
			continue
		}
		hits = append(hits, scored{entry: ep.Entry, score: sim * ep.Importance})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]*memory.MemoryEntry, len(hits))
	for i, h := range hits {
		e := h.entry.Clone()
		e.SetRelevance(h.score)
		out[i] = e
	}
	return out, nil
}

// Pattern keys reported by IdentifyUserPatterns. Emotion frequencies use
// PatternEmotionPrefix followed by the emotion tag.
const (
	PatternAvgGapHours   = "avg_interaction_gap_hours"
	PatternErrorRate     = "error_rate"
	PatternEmotionPrefix = "emotion_"
)

// IdentifyUserPatterns summarizes a user's timeline: the mean gap between
// consecutive episodes in hours (more than three episodes only), the share of
// episodes mentioning "error", and the share of each emotion tag.
func (m *EpisodicMemory) IdentifyUserPatterns(userID string) map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	patterns := make(map[string]float64)
	eps := m.timeline(userID)
	if len(eps) == 0 {
		return patterns
	}

	if len(eps) > minEpisodesForCadence {
		var total float64
		for i := 1; i < len(eps); i++ {
			total += eps[i].Entry.Timestamp.Sub(eps[i-1].Entry.Timestamp).Hours()
		}
		patterns[PatternAvgGapHours] = total / float64(len(eps)-1)
	}

	n := float64(len(eps))
	var errorsSeen int
	emotions := make(map[string]int)
	for _, ep := range eps {
		if strings.Contains(strings.ToLower(ep.Entry.Content), "error") {
			errorsSeen++
		}
		if ep.Emotion != "" {
			emotions[ep.Emotion]++
		}
	}
	patterns[PatternErrorRate] = float64(errorsSeen) / n
	for emotion, count := range emotions {
		patterns[PatternEmotionPrefix+emotion] = float64(count) / n
	}
	return patterns
}

// Len returns the number of stored episodes across all users.
func (m *EpisodicMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.episodes)
}

package engine

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Role tags a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ParseRole accepts the four known roles, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Message is one buffered conversation turn.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	truncationMarker = "...[truncated]"
	// summarizeMinMessages is the buffer length below which summarization
	// is skipped.
	summarizeMinMessages = 10
)

// EstimateTokens approximates a token count as one token per four characters.
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// WorkingMemory is a bounded FIFO buffer of role-tagged messages with a token
// budget. Only the most recent summary of evicted context is kept.
type WorkingMemory struct {
	mu          sync.RWMutex
	messages    []Message
	maxMessages int
	maxTokens   int
	summary     string
}

// NewWorkingMemory creates a buffer holding at most maxMessages messages and
// roughly maxTokens tokens.
func NewWorkingMemory(maxMessages, maxTokens int) *WorkingMemory {
	if maxMessages <= 0 {
		maxMessages = 50
	}
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	return &WorkingMemory{
		maxMessages: maxMessages,
		maxTokens:   maxTokens,
	}
}

// AddMessage appends a message and evicts the oldest ones until both the
// count cap and the token budget hold. It returns the message ID.
func (w *WorkingMemory) AddMessage(role, content string) (string, error) {
	r, err := ParseRole(role)
	if err != nil {
		return "", err
	}
	msg := Message{
		ID:        uuid.New().String(),
		Role:      r,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.messages = append(w.messages, msg)
	if over := len(w.messages) - w.maxMessages; over > 0 {
		w.evict(over)
	}
	for len(w.messages) > 0 && w.tokenCount() > w.maxTokens {
		w.evict(1)
	}
	return msg.ID, nil
}

// evict drops the n oldest messages. Callers hold mu.
func (w *WorkingMemory) evict(n int) {
	// Copy so the backing array does not pin evicted messages.
	w.messages = append([]Message(nil), w.messages[n:]...)
}

// tokenCount covers buffered messages plus the summary. Callers hold mu.
func (w *WorkingMemory) tokenCount() int {
	total := EstimateTokens(w.summary)
	for _, m := range w.messages {
		total += EstimateTokens(m.Content)
	}
	return total
}

// TokenCount returns the estimated size of the buffer and summary.
func (w *WorkingMemory) TokenCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tokenCount()
}

// GetContext renders the summary and buffered messages as a role-prefixed
// transcript, cut to about maxTokens tokens.
func (w *WorkingMemory) GetContext(maxTokens int) string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var b strings.Builder
	if w.summary != "" {
		b.WriteString("Previous conversation summary:\n")
		b.WriteString(w.summary)
		b.WriteString("\n\nRecent messages:\n")
	}
	for _, m := range w.messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}

	text := b.String()
	if EstimateTokens(text) <= maxTokens {
		return text
	}
	keep := maxTokens * 4
	if keep < 0 {
		keep = 0
	}
	runes := []rune(text)
	if keep >= len(runes) {
		return text
	}
	return string(runes[:keep]) + truncationMarker
}

// SummarizeOldContext folds the oldest half of the buffer into a synthetic
// summary, replacing any previous summary. Buffers shorter than ten messages
// are left alone. It reports whether a summary was produced.
func (w *WorkingMemory) SummarizeOldContext() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.messages) < summarizeMinMessages {
		return false
	}
	n := len(w.messages) / 2
	w.summary = summarize(w.messages[:n])
	w.evict(n)
	return true
}

func summarize(messages []Message) string {
	counts := make(map[Role]int)
	for _, m := range messages {
		counts[m.Role]++
	}
	var parts []string
	for _, r := range []Role{RoleUser, RoleAssistant, RoleSystem, RoleTool} {
		if counts[r] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[r], r))
		}
	}
	last := messages[len(messages)-1]
	return fmt.Sprintf("Earlier conversation of %d messages (%s). Last summarized %s message: %q",
		len(messages), strings.Join(parts, ", "), last.Role, clip(last.Content, 80))
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// Summary returns the current summary, or "".
func (w *WorkingMemory) Summary() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.summary
}

// Messages returns a copy of the buffer, oldest first.
func (w *WorkingMemory) Messages() []Message {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]Message(nil), w.messages...)
}

// Recent returns up to n of the newest messages, oldest first.
func (w *WorkingMemory) Recent(n int) []Message {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if n <= 0 {
		return []Message{}
	}
	if n > len(w.messages) {
		n = len(w.messages)
	}
	return append([]Message(nil), w.messages[len(w.messages)-n:]...)
}

// Len returns the number of buffered messages.
func (w *WorkingMemory) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.messages)
}

// MaxMessages returns the count cap.
func (w *WorkingMemory) MaxMessages() int {
	return w.maxMessages
}

// Clear drops every message and the summary.
func (w *WorkingMemory) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = nil
	w.summary = ""
}

// lowPriorityPrefix marks messages stored below the importance threshold.
const lowPriorityPrefix = "[LOW_PRIORITY] "

// SmartMessageBuffer is a WorkingMemory that tags low-importance messages.
// Tagged messages share the same bounded buffer.
type SmartMessageBuffer struct {
	*WorkingMemory
	importanceThreshold float64
}

// NewSmartMessageBuffer creates an importance-aware buffer.
func NewSmartMessageBuffer(maxMessages, maxTokens int, importanceThreshold float64) *SmartMessageBuffer {
	return &SmartMessageBuffer{
		WorkingMemory:       NewWorkingMemory(maxMessages, maxTokens),
		importanceThreshold: importanceThreshold,
	}
}

// AddMessageWithImportance stores content, prefixing it with a low-priority
// tag when importance is below the threshold.
func (s *SmartMessageBuffer) AddMessageWithImportance(role, content string, importance float64) (string, error) {
	if importance < s.importanceThreshold {
		content = lowPriorityPrefix + content
	}
	return s.AddMessage(role, content)
}

// ImportantMessages returns buffered messages without the low-priority tag.
func (s *SmartMessageBuffer) ImportantMessages() []Message {
	all := s.Messages()
	out := make([]Message, 0, len(all))
	for _, m := range all {
		if !strings.HasPrefix(m.Content, lowPriorityPrefix) {
			out = append(out, m)
		}
	}
	return out
}

// AutoSummarize summarizes once the buffer is more than three quarters full.
func (s *SmartMessageBuffer) AutoSummarize() bool {
	if s.Len() > s.MaxMessages()*3/4 {
		return s.SummarizeOldContext()
	}
	return false
}

// Package memory defines the record model shared by every part of the agent
// memory subsystem: entries, memory kinds, search results and the cosine
// similarity used to compare embeddings.
package memory

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the memory model.
var (
	ErrInvalidEntryID    = errors.New("memory: invalid entry ID")
	ErrInvalidMemoryType = errors.New("memory: invalid memory type")
	ErrDimensionMismatch = errors.New("memory: vector dimension mismatch")
	ErrEmptyContent      = errors.New("memory: content is empty")
	ErrUserNotConfigured = errors.New("memory: no user configured")
)

// MemoryType tags an entry with the memory kind that owns it.
type MemoryType string

const (
	// Working is short-lived, bounded conversational context.
	Working MemoryType = "Working"
	// Semantic is durable factual knowledge.
	Semantic MemoryType = "Semantic"
	// Procedural holds named, ordered step sequences.
	Procedural MemoryType = "Procedural"
	// Episodic is a per-user timeline of past interactions.
	Episodic MemoryType = "Episodic"
)

// AllTypes lists every memory kind in a stable order.
var AllTypes = []MemoryType{Working, Semantic, Procedural, Episodic}

// String implements fmt.Stringer.
func (t MemoryType) String() string {
	return string(t)
}

// Valid reports whether t is one of the four known kinds.
func (t MemoryType) Valid() bool {
	switch t {
	case Working, Semantic, Procedural, Episodic:
		return true
	}
	return false
}

// ParseMemoryType parses a memory kind tag. Matching is case-insensitive so
// that "semantic" and "Semantic" resolve to the same kind.
func ParseMemoryType(s string) (MemoryType, error) {
	for _, t := range AllTypes {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMemoryType, s)
}

// Well-known metadata keys.
const (
	MetaAgentID = "agent_id"
	MetaUserID  = "user_id"
)

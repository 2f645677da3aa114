// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"time"

	"github.com/goclaw/agentmemory/pkg/memory"
)

// Scope selects the agent and user a facade call acts for. Empty fields
// fall back to the service defaults.
type Scope struct {
	AgentID string `json:"agent_id,omitempty" validate:"omitempty,max=128"`
	UserID  string `json:"user_id,omitempty" validate:"omitempty,max=128"`
}

// StoreMemoryRequest is the body of POST /api/v1/memories.
type StoreMemoryRequest struct {
	Scope
	Content    string            `json:"content" validate:"required"`
	MemoryType string            `json:"memory_type" validate:"required"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// StoreMemoryResponse carries the id of a stored entry.
type StoreMemoryResponse struct {
	ID string `json:"id"`
}

// SearchMemoriesRequest is the body of POST /api/v1/memories/search.
type SearchMemoriesRequest struct {
	Scope
	Query       string   `json:"query" validate:"required"`
	MemoryTypes []string `json:"memory_types,omitempty"`
	MaxResults  int      `json:"max_results,omitempty" validate:"omitempty,min=1,max=100"`
}

// SearchMemoriesResponse is a ranked list of entries.
type SearchMemoriesResponse struct {
	Entries      []*memory.MemoryEntry `json:"entries"`
	TotalCount   int                   `json:"total_count"`
	SearchTimeMS int64                 `json:"search_time_ms"`
}

// ListMemoriesResponse is an unranked list of entries.
type ListMemoriesResponse struct {
	Entries []*memory.MemoryEntry `json:"entries"`
	Total   int                   `json:"total"`
	Limit   int                   `json:"limit"`
}

// UpdateRelevanceRequest is the body of PUT /api/v1/memories/{id}/relevance.
type UpdateRelevanceRequest struct {
	Score *float64 `json:"score" validate:"required,min=0,max=1"`
}

// DeleteMemoryResponse confirms a delete.
type DeleteMemoryResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// AgenticStoreRequest is the body of POST /api/v1/agentic/store.
type AgenticStoreRequest struct {
	Content  string            `json:"content" validate:"required"`
	UserID   string            `json:"user_id,omitempty" validate:"omitempty,max=128"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AgenticStoreResponse lists the ids of every destination that accepted
// the content. Errors names destinations that failed.
type AgenticStoreResponse struct {
	IDs    []string `json:"ids"`
	Errors []string `json:"errors,omitempty"`
}

// AgenticRetrieveRequest is the body of POST /api/v1/agentic/retrieve.
type AgenticRetrieveRequest struct {
	Query        string `json:"query" validate:"required"`
	UserID       string `json:"user_id,omitempty" validate:"omitempty,max=128"`
	Conversation string `json:"conversation,omitempty"`
}

// StrategyFailure names a retrieval strategy that contributed nothing.
type StrategyFailure struct {
	Strategy string `json:"strategy"`
	Error    string `json:"error"`
}

// AgenticRetrieveResponse is the reranked outcome of a retrieval.
type AgenticRetrieveResponse struct {
	Entries      []*memory.MemoryEntry `json:"entries"`
	TotalCount   int                   `json:"total_count"`
	SearchTimeMS int64                 `json:"search_time_ms"`
	Strategies   []string              `json:"strategies"`
	Failures     []StrategyFailure     `json:"failures,omitempty"`
}

// AgentContextRequest is the body of POST /api/v1/agentic/context.
type AgentContextRequest struct {
	Query  string `json:"query" validate:"required"`
	UserID string `json:"user_id,omitempty" validate:"omitempty,max=128"`
}

// AgentContextResponse carries the rendered prompt block.
type AgentContextResponse struct {
	Context string `json:"context"`
}

// ConsolidateRequest is the body of POST /api/v1/agentic/consolidate.
type ConsolidateRequest struct {
	UserID string `json:"user_id,omitempty" validate:"omitempty,max=128"`
}

// ConsolidateResponse reports when the pass completed.
type ConsolidateResponse struct {
	ConsolidatedAt time.Time `json:"consolidated_at"`
	WorkingLen     int       `json:"working_messages"`
}

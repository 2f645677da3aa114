package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/goclaw/agentmemory/pkg/agentmemory"
	"github.com/goclaw/agentmemory/pkg/api/middleware"
	"github.com/goclaw/agentmemory/pkg/api/models"
	"github.com/goclaw/agentmemory/pkg/api/response"
	"github.com/goclaw/agentmemory/pkg/memory"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

// MemoryHandler exposes the agent-layer memory facade.
type MemoryHandler struct {
	memory    *agentmemory.AgentMemory
	logger    Logger
	validator *validator.Validate
}

// NewMemoryHandler creates a new memory handler around the service's
// default-scoped facade.
func NewMemoryHandler(mem *agentmemory.AgentMemory, log Logger) *MemoryHandler {
	return &MemoryHandler{
		memory:    mem,
		logger:    orNop(log),
		validator: validator.New(),
	}
}

// scoped returns the facade for the requested agent and user. Empty fields
// fall back to the request scope headers, then to the defaults.
func (h *MemoryHandler) scoped(ctx context.Context, agentID, userID string) *agentmemory.AgentMemory {
	scope := middleware.ScopeFrom(ctx)
	if agentID == "" {
		agentID = scope.AgentID
	}
	if userID == "" {
		userID = scope.UserID
	}
	if agentID == "" && userID == "" {
		return h.memory
	}
	if agentID == "" {
		agentID = h.memory.AgentID()
	}
	if userID == "" {
		userID = h.memory.UserID()
	}
	return h.memory.ForScope(agentID, userID)
}

// StoreMemory handles POST /api/v1/memories
func (h *MemoryHandler) StoreMemory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.StoreMemoryRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	memType, err := memory.ParseMemoryType(req.MemoryType)
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
		return
	}

	id, err := h.scoped(ctx, req.AgentID, req.UserID).StoreMemory(ctx, req.Content, memType, req.Metadata)
	if err != nil {
		writeError(w, r, h.logger, "Failed to store memory", err)
		return
	}

	h.logger.Debug("memory stored", "id", id, "memory_type", memType)
	response.Created(w, "/api/v1/memories/"+id, models.StoreMemoryResponse{ID: id})
}

// SearchMemories handles POST /api/v1/memories/search
func (h *MemoryHandler) SearchMemories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.SearchMemoriesRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	types := make([]memory.MemoryType, 0, len(req.MemoryTypes))
	for _, s := range req.MemoryTypes {
		t, err := memory.ParseMemoryType(s)
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
			return
		}
		types = append(types, t)
	}

	result, err := h.scoped(ctx, req.AgentID, req.UserID).SearchMemories(ctx, req.Query, types, req.MaxResults)
	if err != nil {
		writeError(w, r, h.logger, "Failed to search memories", err)
		return
	}

	response.JSON(w, http.StatusOK, models.SearchMemoriesResponse{
		Entries:      nonNil(result.Entries),
		TotalCount:   result.TotalCount,
		SearchTimeMS: result.SearchTime.Milliseconds(),
	})
}

// GetAgentMemories handles GET /api/v1/memories/agent
func (h *MemoryHandler) GetAgentMemories(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	entries, err := h.scoped(r.Context(), q.Get("agent_id"), q.Get("user_id")).GetAgentMemories(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.logger, "Failed to list agent memories", err)
		return
	}
	response.JSON(w, http.StatusOK, models.ListMemoriesResponse{Entries: nonNil(entries), Total: len(entries), Limit: limit})
}

// GetUserMemories handles GET /api/v1/memories/user
func (h *MemoryHandler) GetUserMemories(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	entries, err := h.scoped(r.Context(), q.Get("agent_id"), q.Get("user_id")).GetUserMemories(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.logger, "Failed to list user memories", err)
		return
	}
	response.JSON(w, http.StatusOK, models.ListMemoriesResponse{Entries: nonNil(entries), Total: len(entries), Limit: limit})
}

// GetMemory handles GET /api/v1/memories/{id}
func (h *MemoryHandler) GetMemory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if id == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Memory ID is required", getRequestID(ctx))
		return
	}

	entry, found, err := h.memory.GetMemory(ctx, id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to get memory", err)
		return
	}
	if !found {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "Memory not found", getRequestID(ctx))
		return
	}
	response.JSON(w, http.StatusOK, entry)
}

// DeleteMemory handles DELETE /api/v1/memories/{id}
func (h *MemoryHandler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if id == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Memory ID is required", getRequestID(ctx))
		return
	}

	if err := h.memory.DeleteMemory(ctx, id); err != nil {
		writeError(w, r, h.logger, "Failed to delete memory", err)
		return
	}
	response.JSON(w, http.StatusOK, models.DeleteMemoryResponse{ID: id, Deleted: true})
}

// UpdateRelevance handles PUT /api/v1/memories/{id}/relevance
func (h *MemoryHandler) UpdateRelevance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if id == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Memory ID is required", getRequestID(ctx))
		return
	}

	var req models.UpdateRelevanceRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	if err := h.memory.UpdateRelevance(ctx, id, *req.Score); err != nil {
		writeError(w, r, h.logger, "Failed to update relevance", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseLimit reads ?limit, defaulting to defaultListLimit.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultListLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > maxListLimit {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed,
			"limit must be an integer between 1 and "+strconv.Itoa(maxListLimit), getRequestID(r.Context()))
		return 0, false
	}
	return limit, true
}

func nonNil(entries []*memory.MemoryEntry) []*memory.MemoryEntry {
	if entries == nil {
		return []*memory.MemoryEntry{}
	}
	return entries
}

package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/goclaw/agentmemory/pkg/api/models"
	"github.com/goclaw/agentmemory/pkg/api/response"
	"github.com/goclaw/agentmemory/pkg/engine"
)

// AgenticHandler exposes the agentic memory manager.
type AgenticHandler struct {
	manager     *engine.AgenticMemoryManager
	defaultUser string
	logger      Logger
	validator   *validator.Validate
}

// NewAgenticHandler creates a handler. defaultUser is used when a request
// names no user.
func NewAgenticHandler(manager *engine.AgenticMemoryManager, defaultUser string, log Logger) *AgenticHandler {
	return &AgenticHandler{
		manager:     manager,
		defaultUser: defaultUser,
		logger:      orNop(log),
		validator:   validator.New(),
	}
}

func (h *AgenticHandler) user(id string) string {
	if id == "" {
		return h.defaultUser
	}
	return id
}

// Store handles POST /api/v1/agentic/store
func (h *AgenticHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req models.AgenticStoreRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	ids, err := h.manager.IntelligentStore(r.Context(), req.Content, req.Metadata, h.user(req.UserID))
	if err != nil && len(ids) == 0 {
		writeError(w, r, h.logger, "Failed to store content", err)
		return
	}

	resp := models.AgenticStoreResponse{IDs: ids}
	if resp.IDs == nil {
		resp.IDs = []string{}
	}
	if err != nil {
		h.logger.Warn("partial store", "stored", len(ids), "error", err)
		resp.Errors = flatten(err)
	}
	response.JSON(w, http.StatusCreated, resp)
}

// Retrieve handles POST /api/v1/agentic/retrieve
func (h *AgenticHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req models.AgenticRetrieveRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	result, err := h.manager.AgenticRetrieve(r.Context(), req.Query, h.user(req.UserID), req.Conversation)
	if err != nil {
		writeError(w, r, h.logger, "Failed to retrieve memories", err)
		return
	}

	resp := models.AgenticRetrieveResponse{
		Entries:      nonNil(result.Entries),
		TotalCount:   result.TotalCount,
		SearchTimeMS: result.SearchTime.Milliseconds(),
		Strategies:   make([]string, 0, len(result.Strategies)),
	}
	for _, s := range result.Strategies {
		resp.Strategies = append(resp.Strategies, string(s.Kind))
	}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, models.StrategyFailure{
			Strategy: string(f.Strategy),
			Error:    f.Err.Error(),
		})
	}
	response.JSON(w, http.StatusOK, resp)
}

// Context handles POST /api/v1/agentic/context
func (h *AgenticHandler) Context(w http.ResponseWriter, r *http.Request) {
	var req models.AgentContextRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	text, err := h.manager.GetAgentContext(r.Context(), req.Query, h.user(req.UserID))
	if err != nil {
		writeError(w, r, h.logger, "Failed to build agent context", err)
		return
	}
	response.JSON(w, http.StatusOK, models.AgentContextResponse{Context: text})
}

// Consolidate handles POST /api/v1/agentic/consolidate
func (h *AgenticHandler) Consolidate(w http.ResponseWriter, r *http.Request) {
	var req models.ConsolidateRequest
	if !decode(w, r, h.validator, &req) {
		return
	}

	if err := h.manager.Consolidate(r.Context(), h.user(req.UserID)); err != nil {
		writeError(w, r, h.logger, "Failed to consolidate memory", err)
		return
	}

	at, _ := h.manager.LastConsolidation()
	response.JSON(w, http.StatusOK, models.ConsolidateResponse{
		ConsolidatedAt: at,
		WorkingLen:     h.manager.Working().Len(),
	})
}

// flatten splits a joined error into its messages.
func flatten(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

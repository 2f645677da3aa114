// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/goclaw/agentmemory/pkg/agentmemory"
	"github.com/goclaw/agentmemory/pkg/api/middleware"
	"github.com/goclaw/agentmemory/pkg/api/response"
	"github.com/goclaw/agentmemory/pkg/engine"
	"github.com/goclaw/agentmemory/pkg/memory"
	"github.com/goclaw/agentmemory/pkg/storage"
)

// Logger is the logging surface the handlers need.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func orNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}

func getRequestID(ctx context.Context) string {
	if id := middleware.GetRequestID(ctx); id != "" {
		return id
	}
	return "unknown"
}

// decode reads a JSON body into dst and validates it.
func decode(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(r.Context()))
		return false
	}
	if err := v.Struct(dst); err != nil {
		response.ErrorWithDetails(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(),
			fieldErrors(err), getRequestID(r.Context()))
		return false
	}
	return true
}

// fieldErrors maps each failing request field to the rule it broke.
func fieldErrors(err error) map[string]any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}

// statusFor maps a facade or engine error to an HTTP status.
func statusFor(err error) int {
	var facadeErr *agentmemory.Error
	if errors.As(err, &facadeErr) {
		switch facadeErr.Kind {
		case agentmemory.KindValidation:
			return http.StatusBadRequest
		case agentmemory.KindEmbedding:
			return http.StatusBadGateway
		}
	}

	var embedErr *engine.EmbeddingError
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &embedErr), errors.Is(err, engine.ErrNoEmbedder):
		return http.StatusBadGateway
	case errors.Is(err, engine.ErrEmptyContent),
		errors.Is(err, engine.ErrUserRequired),
		errors.Is(err, engine.ErrInvalidRole),
		errors.Is(err, engine.ErrEmptyName),
		errors.Is(err, engine.ErrNoSteps),
		errors.Is(err, memory.ErrInvalidMemoryType),
		errors.Is(err, memory.ErrEmptyContent),
		errors.Is(err, memory.ErrInvalidEntryID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with the status statusFor picks. Server-side
// failures hide the cause behind msg.
func writeError(w http.ResponseWriter, r *http.Request, log Logger, msg string, err error) {
	status := statusFor(err)
	text := err.Error()
	if status == http.StatusInternalServerError {
		log.Error(msg, "error", err, "path", r.URL.Path)
		text = msg
	} else {
		log.Warn(msg, "error", err, "status", status)
	}
	response.Error(w, status, response.ErrorCodeFromStatus(status), text, getRequestID(r.Context()))
}

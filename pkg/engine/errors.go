package engine

import (
	"errors"
	"fmt"
)

// Sentinel errors for the memory engines.
var (
	ErrInvalidRole   = errors.New("engine: invalid message role")
	ErrNotFound      = errors.New("engine: entry not found")
	ErrEmptyName     = errors.New("engine: procedure name is empty")
	ErrNoSteps       = errors.New("engine: procedure has no steps")
	ErrEmptyContent  = errors.New("engine: content is empty")
	ErrUserRequired  = errors.New("engine: user ID is required")
	ErrNoEmbedder    = errors.New("engine: embedding provider is nil")
	ErrStrategyPanic = errors.New("engine: retrieval strategy panicked")
)

// EmbeddingError is returned when an engine cannot vectorize content.
type EmbeddingError struct {
	Engine string
	Cause  error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("%s engine: embed: %v", e.Engine, e.Cause)
}

func (e *EmbeddingError) Unwrap() error { return e.Cause }

// NotFoundError names the missing entry.
type NotFoundError struct {
	Engine string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s engine: entry %q not found", e.Engine, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

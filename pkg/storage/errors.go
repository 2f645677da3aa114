package storage

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by *Error through errors.Is.
var (
	ErrConnection    = errors.New("storage: connection failure")
	ErrDatabase      = errors.New("storage: database failure")
	ErrSerialization = errors.New("storage: serialization failure")
	ErrNotFound      = errors.New("storage: not found")
	ErrConfig        = errors.New("storage: configuration error")
	ErrVector        = errors.New("storage: vector backend failure")
)

// ErrorKind classifies a storage failure.
type ErrorKind int

const (
	KindConnection ErrorKind = iota + 1
	KindDatabase
	KindSerialization
	KindNotFound
	KindConfig
	KindVector
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindDatabase:
		return "database"
	case KindSerialization:
		return "serialization"
	case KindNotFound:
		return "not found"
	case KindConfig:
		return "config"
	case KindVector:
		return "vector"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindConnection:
		return ErrConnection
	case KindDatabase:
		return ErrDatabase
	case KindSerialization:
		return ErrSerialization
	case KindNotFound:
		return ErrNotFound
	case KindConfig:
		return ErrConfig
	case KindVector:
		return ErrVector
	default:
		return nil
	}
}

// Error is a classified storage failure.
type Error struct {
	Kind    ErrorKind
	Backend string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("storage: %s %s: %s", e.Backend, e.Op, e.Kind)
	}
	return fmt.Sprintf("storage: %s %s: %s: %v", e.Backend, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// NewError builds a classified error.
func NewError(kind ErrorKind, backend, op string, err error) *Error {
	return &Error{Kind: kind, Backend: backend, Op: op, Err: err}
}

// ConnectionError reports an unreachable or failed backend connection.
func ConnectionError(backend, op string, err error) *Error {
	return NewError(KindConnection, backend, op, err)
}

// DatabaseError reports a failed query or write.
func DatabaseError(backend, op string, err error) *Error {
	return NewError(KindDatabase, backend, op, err)
}

// SerializationError reports an encode or decode failure.
func SerializationError(backend, op string, err error) *Error {
	return NewError(KindSerialization, backend, op, err)
}

// ConfigError reports an invalid backend configuration.
func ConfigError(backend, op string, err error) *Error {
	return NewError(KindConfig, backend, op, err)
}

// VectorError reports a vector index failure.
func VectorError(backend, op string, err error) *Error {
	return NewError(KindVector, backend, op, err)
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

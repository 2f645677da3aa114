package embedding

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by *Error through errors.Is.
var (
	ErrTransport         = errors.New("embedding: transport failure")
	ErrMalformedResponse = errors.New("embedding: malformed response")
	ErrEmptyResponse     = errors.New("embedding: empty response")
	ErrModel             = errors.New("embedding: model error")
	ErrConfig            = errors.New("embedding: configuration error")
)

// ErrorKind classifies an embedding failure.
type ErrorKind int

const (
	KindTransport ErrorKind = iota + 1
	KindMalformed
	KindEmpty
	KindModel
	KindConfig
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindMalformed:
		return "malformed response"
	case KindEmpty:
		return "empty response"
	case KindModel:
		return "model"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindMalformed:
		return ErrMalformedResponse
	case KindEmpty:
		return ErrEmptyResponse
	case KindModel:
		return ErrModel
	case KindConfig:
		return ErrConfig
	default:
		return nil
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("embedding: %s: %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("embedding: %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func newError(kind ErrorKind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) ErrorKind {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return 0
}

package agentmemory

import "fmt"

// ErrorKind is the flattened cause of a facade failure.
type ErrorKind string

const (
	KindEmbedding  ErrorKind = "embedding"
	KindStorage    ErrorKind = "storage"
	KindValidation ErrorKind = "validation"
)

// Error reports which facade operation failed and why. Callers at the agent
// layer treat any *Error as non-fatal.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("agentmemory: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(op string, kind ErrorKind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

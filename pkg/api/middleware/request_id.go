package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Headers carrying the request identity and the memory scope.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderAgentID   = "X-Agent-ID"
	HeaderUserID    = "X-User-ID"
)

// maxRequestIDLen caps client-supplied IDs before they reach logs and spans.
const maxRequestIDLen = 128

type scopeKey struct{}

// Scope identifies a request and the agent/user whose memories it touches.
// Empty AgentID or UserID means the service default applies.
type Scope struct {
	RequestID string
	AgentID   string
	UserID    string
}

// RequestID returns a middleware that assigns each request an ID and
// resolves its memory scope. The scope comes from the X-Agent-ID and
// X-User-ID headers, falling back to the agent_id and user_id query
// parameters.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope := Scope{
				RequestID: r.Header.Get(HeaderRequestID),
				AgentID:   scopeValue(r, HeaderAgentID, "agent_id"),
				UserID:    scopeValue(r, HeaderUserID, "user_id"),
			}
			if !validRequestID(scope.RequestID) {
				scope.RequestID = uuid.New().String()
			}

			w.Header().Set(HeaderRequestID, scope.RequestID)
			next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), scope)))
		})
	}
}

// WithScope returns ctx carrying scope.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the scope stored by RequestID, or the zero Scope.
func ScopeFrom(ctx context.Context) Scope {
	scope, _ := ctx.Value(scopeKey{}).(Scope)
	return scope
}

// GetRequestID extracts the request ID from context.
func GetRequestID(ctx context.Context) string {
	return ScopeFrom(ctx).RequestID
}

// LogArgs returns the non-empty scope fields as slog key/value pairs.
func (s Scope) LogArgs() []any {
	args := make([]any, 0, 6)
	if s.RequestID != "" {
		args = append(args, "request_id", s.RequestID)
	}
	if s.AgentID != "" {
		args = append(args, "agent_id", s.AgentID)
	}
	if s.UserID != "" {
		args = append(args, "user_id", s.UserID)
	}
	return args
}

func scopeValue(r *http.Request, header, param string) string {
	if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get(param))
}

// validRequestID accepts short IDs made of printable ASCII without spaces.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] <= ' ' || id[i] > '~' {
			return false
		}
	}
	return true
}

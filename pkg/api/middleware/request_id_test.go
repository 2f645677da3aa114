package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name          string
		requestID     string
		wantGenerated bool
	}{
		{name: "generate when missing", requestID: "", wantGenerated: true},
		{name: "keep client ID", requestID: "existing-123", wantGenerated: false},
		{name: "replace ID with spaces", requestID: "bad id", wantGenerated: true},
		{name: "replace oversized ID", requestID: strings.Repeat("a", maxRequestIDLen+1), wantGenerated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = GetRequestID(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/memories/agent", nil)
			if tt.requestID != "" {
				req.Header.Set(HeaderRequestID, tt.requestID)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			responseID := w.Header().Get(HeaderRequestID)
			if responseID == "" || responseID != captured {
				t.Fatalf("response ID %q, context ID %q", responseID, captured)
			}
			if tt.wantGenerated {
				if _, err := uuid.Parse(captured); err != nil {
					t.Errorf("generated request ID is not a UUID: %v", err)
				}
			} else if captured != tt.requestID {
				t.Errorf("request ID = %q, want %q", captured, tt.requestID)
			}
		})
	}
}

func TestRequestID_ResolvesMemoryScope(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		headers   map[string]string
		wantAgent string
		wantUser  string
	}{
		{
			name:      "headers",
			target:    "/api/v1/memories/search",
			headers:   map[string]string{HeaderAgentID: "agent-7", HeaderUserID: "user-3"},
			wantAgent: "agent-7",
			wantUser:  "user-3",
		},
		{
			name:      "query parameters",
			target:    "/api/v1/memories/user?agent_id=agent-1&user_id=user-1",
			wantAgent: "agent-1",
			wantUser:  "user-1",
		},
		{
			name:      "header wins over query",
			target:    "/api/v1/memories/agent?agent_id=from-query",
			headers:   map[string]string{HeaderAgentID: " from-header "},
			wantAgent: "from-header",
		},
		{
			name:   "unscoped",
			target: "/api/v1/memories/agent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Scope
			handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = ScopeFrom(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if got.AgentID != tt.wantAgent {
				t.Errorf("AgentID = %q, want %q", got.AgentID, tt.wantAgent)
			}
			if got.UserID != tt.wantUser {
				t.Errorf("UserID = %q, want %q", got.UserID, tt.wantUser)
			}
			if got.RequestID == "" {
				t.Error("RequestID not set")
			}
		})
	}
}

func TestScope_LogArgs(t *testing.T) {
	args := Scope{RequestID: "req-1", UserID: "user-1"}.LogArgs()
	want := []any{"request_id", "req-1", "user_id", "user-1"}
	if len(args) != len(want) {
		t.Fatalf("LogArgs() = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("LogArgs() = %v, want %v", args, want)
		}
	}

	if got := (Scope{}).LogArgs(); len(got) != 0 {
		t.Errorf("empty scope LogArgs() = %v, want none", got)
	}
}

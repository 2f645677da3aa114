package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	handler := RateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(path, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = remote
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := send("/api/v1/memories/agent", "10.0.0.1:5000"); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := send("/api/v1/memories/agent", "10.0.0.1:5001")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	if w := send("/api/v1/memories/agent", "10.0.0.2:5000"); w.Code != http.StatusOK {
		t.Errorf("other clients have their own bucket, got %d", w.Code)
	}
	if w := send("/health", "10.0.0.1:5000"); w.Code != http.StatusOK {
		t.Errorf("health probes are never limited, got %d", w.Code)
	}
}

func TestClientID(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		fwd    string
		want   string
	}{
		{"remote host", "192.168.1.4:8080", "", "192.168.1.4"},
		{"forwarded first hop", "10.0.0.1:80", "203.0.113.9, 10.0.0.1", "203.0.113.9"},
		{"no port", "unix-socket", "", "unix-socket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.fwd != "" {
				req.Header.Set("X-Forwarded-For", tt.fwd)
			}
			if got := clientID(req); got != tt.want {
				t.Errorf("clientID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiter_Prune(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(10, 0)
	rl.now = func() time.Time { return now }

	rl.getLimiter("a")
	now = now.Add(10 * time.Minute)
	rl.getLimiter("b")

	if removed := rl.Prune(5 * time.Minute); removed != 1 {
		t.Fatalf("Prune() removed %d, want 1", removed)
	}
	if rl.Clients() != 1 {
		t.Errorf("expected one remaining client, got %d", rl.Clients())
	}
}

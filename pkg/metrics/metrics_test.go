package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewManager(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if !m.Enabled() {
		t.Error("Expected metrics to be enabled")
	}
	if m.Registry() == nil {
		t.Error("Expected a private registry")
	}
}

func TestNewManager_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if m.Enabled() {
		t.Error("Expected metrics to be disabled")
	}
}

func TestNewManager_EmptyBucketsUseDefaults(t *testing.T) {
	m := NewManager(Config{Enabled: true})
	m.RecordMemoryOperation("store", "semantic", time.Millisecond, nil)
	if got := testutil.CollectAndCount(m.memoryDuration); got != 1 {
		t.Errorf("expected one histogram series, got %d", got)
	}
}

func TestManagersUseSeparateRegistries(t *testing.T) {
	// Registering the same collectors twice would panic on a shared registry.
	a := NewManager(DefaultConfig())
	b := NewManager(DefaultConfig())
	a.SetWorkingMessages(3)
	if got := testutil.ToFloat64(b.workingMessages); got != 0 {
		t.Errorf("expected isolated gauges, got %f", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)

	// Record some metrics
	m.RecordMemoryOperation("store", "semantic", 2*time.Millisecond, nil)
	m.RecordMemoryOperation("retrieve", "", 5*time.Millisecond, errors.New("boom"))
	m.RecordEmbedding("local", time.Millisecond, nil)
	m.RecordRetrievalStrategy("semantic", nil)
	m.RecordConsolidation(10*time.Millisecond, nil)
	m.SetWorkingMessages(7)

	// Create test request
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	// Serve metrics
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	if body == "" {
		t.Error("Expected non-empty metrics output")
	}

	// Check for expected metrics
	expectedMetrics := []string{
		"memory_operations_total",
		"memory_operation_duration_seconds",
		"embedding_requests_total",
		"memory_retrieval_strategies_total",
		"memory_consolidations_total",
		"working_memory_messages 7",
		`memory_type="all"`,
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %s not found in output", metric)
		}
	}
}

func TestRecordMemoryOperation_Status(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.RecordMemoryOperation("store", "episodic", time.Millisecond, nil)
	m.RecordMemoryOperation("store", "episodic", time.Millisecond, nil)
	m.RecordMemoryOperation("store", "episodic", time.Millisecond, errors.New("down"))

	if got := testutil.ToFloat64(m.memoryOperations.WithLabelValues("store", "episodic", "success")); got != 2 {
		t.Errorf("success count = %f, want 2", got)
	}
	if got := testutil.ToFloat64(m.memoryOperations.WithLabelValues("store", "episodic", "error")); got != 1 {
		t.Errorf("error count = %f, want 1", got)
	}
}

func TestRecordRetrievalAndConsolidation(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.RecordRetrievalStrategy("episodic", nil)
	m.RecordRetrievalStrategy("episodic", errors.New("embedder down"))
	m.RecordConsolidation(time.Second, nil)

	if got := testutil.ToFloat64(m.strategyRuns.WithLabelValues("episodic", "error")); got != 1 {
		t.Errorf("strategy errors = %f, want 1", got)
	}
	if got := testutil.ToFloat64(m.consolidations.WithLabelValues("success")); got != 1 {
		t.Errorf("consolidations = %f, want 1", got)
	}
}

func TestRegisterCacheStats(t *testing.T) {
	m := NewManager(DefaultConfig())
	rate, total := 0.25, int64(8)

	if err := m.RegisterCacheStats("metadata", func() (float64, int64) { return rate, total }); err != nil {
		t.Fatalf("RegisterCacheStats() error = %v", err)
	}
	if err := m.RegisterCacheStats("metadata", func() (float64, int64) { return 0, 0 }); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	rate, total = 0.75, 12
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	body := w.Body.String()
	for _, want := range []string{
		`metadata_cache_hit_ratio{cache="metadata"} 0.75`,
		`metadata_cache_lookups_total{cache="metadata"} 12`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in output", want)
		}
	}

	if err := NoOpManager().RegisterCacheStats("metadata", nil); err != nil {
		t.Errorf("disabled manager should ignore registration, got %v", err)
	}
}

func TestMetricsHandler_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 when disabled, got %d", w.Code)
	}
}

func TestStartServer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Port = 19091 // Use different port for testing

	m := NewManager(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		err := m.StartServer(ctx, cfg.Port, cfg.Path)
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	// Try to fetch metrics
	resp, err := http.Get("http://localhost:19091/metrics")
	if err != nil {
		t.Fatalf("Failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	// Cancel context to stop server
	cancel()

	// Check for errors
	select {
	case err := <-errCh:
		t.Errorf("Server error: %v", err)
	case <-time.After(1 * time.Second):
		// Server stopped cleanly
	}
}

func TestNoOpManager(t *testing.T) {
	m := NoOpManager()

	if m.Enabled() {
		t.Error("NoOpManager should not be enabled")
	}

	// These should not panic
	m.RecordMemoryOperation("store", "working", time.Second, nil)
	m.RecordEmbedding("local", time.Second, nil)
	m.RecordRetrievalStrategy("semantic", nil)
	m.RecordConsolidation(time.Second, nil)
	m.SetWorkingMessages(1)
	m.RecordHTTPRequest("GET", "/health", "200", time.Millisecond)
	m.IncActiveConnections()
	m.DecActiveConnections()
	if err := m.StartServer(context.Background(), 0, "/metrics"); err != nil {
		t.Errorf("disabled StartServer should return nil, got %v", err)
	}
}

func BenchmarkRecordMemoryOperation(b *testing.B) {
	m := NewManager(DefaultConfig())
	d := 100 * time.Microsecond
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordMemoryOperation("store", "semantic", d, nil)
	}
}

func BenchmarkRecordHTTPRequest(b *testing.B) {
	m := NewManager(DefaultConfig())
	d := 5 * time.Millisecond
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordHTTPRequest("POST", "/api/v1/agentic/retrieve", "200", d)
	}
}

func BenchmarkNoOpRecording(b *testing.B) {
	m := NoOpManager()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordMemoryOperation("store", "semantic", 0, nil)
		m.RecordEmbedding("local", 0, nil)
		m.RecordRetrievalStrategy("semantic", nil)
	}
}

func TestMetricsMemoryUsage(t *testing.T) {
	m := NewManager(DefaultConfig())

	// Simulate heavy metrics recording with bounded label values
	operations := []string{"store", "retrieve", "delete", "update_relevance"}
	types := []string{"working", "semantic", "episodic", "procedural"}
	methods := []string{"GET", "POST", "PUT", "DELETE"}
	paths := []string{"/api/v1/memories", "/api/v1/memories/:id", "/health", "/ready"}

	for i := 0; i < 100000; i++ {
		m.RecordMemoryOperation(operations[i%len(operations)], types[i%len(types)], time.Duration(i)*time.Microsecond, nil)
		m.RecordEmbedding("local", time.Duration(i)*time.Microsecond, nil)
		m.RecordHTTPRequest(methods[i%len(methods)], paths[i%len(paths)], "200", time.Duration(i)*time.Microsecond)
	}

	// Verify metrics endpoint still responds correctly after heavy load
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 after heavy load, got %d", w.Code)
	}

	body := w.Body.String()
	if len(body) > 10*1024*1024 { // 10MB sanity check
		t.Errorf("Metrics output too large: %d bytes", len(body))
	}
}

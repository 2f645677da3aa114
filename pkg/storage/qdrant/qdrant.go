// Package qdrant implements storage.VectorStorage against the Qdrant REST API.
package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/goclaw/agentmemory/pkg/memory"
	"github.com/goclaw/agentmemory/pkg/storage"
)

const (
	backend = "qdrant"

	// entryIDKey holds the caller's ID in the point payload. Qdrant only
	// accepts UUIDs and unsigned integers as point IDs.
	entryIDKey = "_entry_id"

	defaultTimeout = 10 * time.Second
)

// pointNamespace derives stable point UUIDs from entry IDs.
var pointNamespace = uuid.MustParse("5b7d1f0e-3c1a-4f6e-9d2b-8a4c6e0f1b3d")

// Config holds configuration for Store.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

// Store is a Qdrant-backed vector store.
type Store struct {
	client     *resty.Client
	collection string
	dimension  int
}

var _ storage.VectorStorage = (*Store)(nil)

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type searchResponse struct {
	Result []scoredPoint `json:"result"`
}

type retrieveResponse struct {
	Result []point `json:"result"`
}

type errorResponse struct {
	Status struct {
		Error string `json:"error"`
	} `json:"status"`
}

// New connects to Qdrant and creates the collection when it does not exist.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, storage.ConfigError(backend, "open", errors.New("url is required"))
	}
	if cfg.Dimension <= 0 {
		return nil, storage.ConfigError(backend, "open", errors.New("dimension must be positive"))
	}
	if cfg.Collection == "" {
		cfg.Collection = "memory"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("api-key", cfg.APIKey)
	}

	s := &Store{client: client, collection: cfg.Collection, dimension: cfg.Dimension}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) collectionPath(suffix string) string {
	return "/collections/" + s.collection + suffix
}

func (s *Store) ensureCollection(ctx context.Context) error {
	resp, err := s.client.R().SetContext(ctx).Get(s.collectionPath(""))
	if err != nil {
		return storage.ConnectionError(backend, "open", err)
	}
	if resp.StatusCode() == http.StatusOK {
		return nil
	}
	if resp.StatusCode() != http.StatusNotFound {
		return classify("open", resp)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	resp, err = s.client.R().SetContext(ctx).SetBody(body).Put(s.collectionPath(""))
	if err != nil {
		return storage.ConnectionError(backend, "create collection", err)
	}
	return classify("create collection", resp)
}

// PointID maps an entry ID onto the UUID used as the Qdrant point ID.
func PointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return strings.ToLower(id)
	}
	return uuid.NewSHA1(pointNamespace, []byte(id)).String()
}

// StoreVector upserts a point.
func (s *Store) StoreVector(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	if id == "" {
		return storage.VectorError(backend, "store", memory.ErrInvalidEntryID)
	}
	if len(vector) != s.dimension {
		return storage.VectorError(backend, "store",
			fmt.Errorf("%w: expected %d, got %d", memory.ErrDimensionMismatch, s.dimension, len(vector)))
	}

	payload := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	payload[entryIDKey] = id

	body := map[string]any{
		"points": []point{{ID: PointID(id), Vector: vector, Payload: payload}},
	}
	resp, err := s.client.R().SetContext(ctx).
		SetQueryParam("wait", "true").
		SetBody(body).
		Put(s.collectionPath("/points"))
	if err != nil {
		return storage.ConnectionError(backend, "store", err)
	}
	return classify("store", resp)
}

// SearchVectors runs a cosine search with a score threshold.
func (s *Store) SearchVectors(ctx context.Context, query []float32, limit int, threshold float64) ([]storage.VectorMatch, error) {
	if limit <= 0 || len(query) != s.dimension {
		return []storage.VectorMatch{}, nil
	}

	body := map[string]any{
		"vector":          query,
		"limit":           limit,
		"with_payload":    true,
		"score_threshold": threshold,
	}
	var out searchResponse
	resp, err := s.client.R().SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post(s.collectionPath("/points/search"))
	if err != nil {
		return nil, storage.ConnectionError(backend, "search", err)
	}
	if err := classify("search", resp); err != nil {
		return nil, err
	}

	matches := make([]storage.VectorMatch, 0, len(out.Result))
	for _, p := range out.Result {
		if p.Score < threshold {
			continue
		}
		id, meta := splitPayload(p.Payload)
		if id == "" {
			id = fmt.Sprint(p.ID)
		}
		matches = append(matches, storage.VectorMatch{ID: id, Score: p.Score, Metadata: meta})
	}
	storage.SortMatches(matches)
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// DeleteVector removes a point. Qdrant treats unknown IDs as a no-op.
func (s *Store) DeleteVector(ctx context.Context, id string) error {
	body := map[string]any{"points": []string{PointID(id)}}
	resp, err := s.client.R().SetContext(ctx).
		SetQueryParam("wait", "true").
		SetBody(body).
		Post(s.collectionPath("/points/delete"))
	if err != nil {
		return storage.ConnectionError(backend, "delete", err)
	}
	return classify("delete", resp)
}

// GetVector retrieves a point's vector.
func (s *Store) GetVector(ctx context.Context, id string) ([]float32, bool, error) {
	body := map[string]any{
		"ids":          []string{PointID(id)},
		"with_vector":  true,
		"with_payload": false,
	}
	var out retrieveResponse
	resp, err := s.client.R().SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post(s.collectionPath("/points"))
	if err != nil {
		return nil, false, storage.ConnectionError(backend, "get", err)
	}
	if err := classify("get", resp); err != nil {
		return nil, false, err
	}
	if len(out.Result) == 0 {
		return nil, false, nil
	}
	return out.Result[0].Vector, true, nil
}

// Close releases idle connections.
func (s *Store) Close() error {
	s.client.GetClient().CloseIdleConnections()
	return nil
}

func splitPayload(payload map[string]any) (string, map[string]string) {
	meta := make(map[string]string, len(payload))
	var id string
	for k, v := range payload {
		if k == entryIDKey {
			id = fmt.Sprint(v)
			continue
		}
		if s, ok := v.(string); ok {
			meta[k] = s
		} else {
			meta[k] = fmt.Sprint(v)
		}
	}
	return id, meta
}

func classify(op string, resp *resty.Response) error {
	code := resp.StatusCode()
	if code >= 200 && code < 300 {
		return nil
	}
	msg := strings.TrimSpace(string(resp.Body()))
	var e errorResponse
	if err := json.Unmarshal(resp.Body(), &e); err == nil && e.Status.Error != "" {
		msg = e.Status.Error
	}
	err := fmt.Errorf("status %d: %s", code, msg)
	if code >= 500 || code == http.StatusUnauthorized || code == http.StatusForbidden {
		return storage.ConnectionError(backend, op, err)
	}
	return storage.VectorError(backend, op, err)
}

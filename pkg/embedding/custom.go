package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const customName = "custom"

// CustomConfig configures a user-supplied HTTP embedding service.
type CustomConfig struct {
	URL       string
	Headers   map[string]string
	Model     string
	Dimension int
	Timeout   time.Duration

	// OpenAIFormat posts {"input": [...], "model": ...} once per batch and
	// reads data[].embedding. Otherwise each text is posted as
	// {TextField: text} and the vector is read from ResponseField.
	OpenAIFormat  bool
	TextField     string
	ResponseField string
}

// Custom posts texts to an arbitrary endpoint.
type Custom struct {
	client *resty.Client
	cfg    CustomConfig
}

type openAIRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     *int      `json:"index"`
	} `json:"data"`
}

// NewCustom creates a custom HTTP provider.
func NewCustom(cfg CustomConfig) (*Custom, error) {
	if cfg.URL == "" {
		return nil, newError(KindConfig, customName, errors.New("url is required"))
	}
	if cfg.Dimension <= 0 {
		return nil, newError(KindConfig, customName, errors.New("dimension must be positive"))
	}
	if cfg.Model == "" {
		cfg.Model = "default"
	}
	if cfg.TextField == "" {
		cfg.TextField = "text"
	}
	if cfg.ResponseField == "" {
		cfg.ResponseField = "embedding"
	}

	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeaders(cfg.Headers)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &Custom{client: client, cfg: cfg}, nil
}

// Embed implements Provider.
func (c *Custom) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, newError(KindEmpty, customName, errors.New("no input texts"))
	}

	var (
		out [][]float32
		err error
	)
	if c.cfg.OpenAIFormat {
		out, err = c.embedBatch(ctx, texts)
	} else {
		out, err = c.embedEach(ctx, texts)
	}
	if err != nil {
		return nil, err
	}
	if err := checkVectors(customName, texts, out, c.cfg.Dimension); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Custom) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := c.post(ctx, openAIRequest{Input: texts, Model: c.cfg.Model})
	if err != nil {
		return nil, err
	}
	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newError(KindMalformed, customName, err)
	}
	if len(resp.Data) == 0 {
		return nil, newError(KindEmpty, customName, nil)
	}
	if len(resp.Data) != len(texts) {
		return nil, newError(KindMalformed, customName,
			fmt.Errorf("got %d vectors for %d texts", len(resp.Data), len(texts)))
	}

	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		pos := i
		if d.Index != nil {
			pos = *d.Index
		}
		if pos < 0 || pos >= len(texts) {
			return nil, newError(KindMalformed, customName, fmt.Errorf("index %d out of range", pos))
		}
		out[pos] = d.Embedding
	}
	return out, nil
}

func (c *Custom) embedEach(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		body, err := c.post(ctx, map[string]string{c.cfg.TextField: text})
		if err != nil {
			return nil, err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, newError(KindMalformed, customName, err)
		}
		raw, ok := fields[c.cfg.ResponseField]
		if !ok {
			return nil, newError(KindEmpty, customName, fmt.Errorf("response has no %q field", c.cfg.ResponseField))
		}
		var vector []float32
		if err := json.Unmarshal(raw, &vector); err != nil {
			return nil, newError(KindMalformed, customName, fmt.Errorf("field %q: %w", c.cfg.ResponseField, err))
		}
		out = append(out, vector)
	}
	return out, nil
}

func (c *Custom) post(ctx context.Context, payload any) ([]byte, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(c.cfg.URL)
	if err != nil {
		return nil, newError(KindTransport, customName, err)
	}
	if !resp.IsSuccess() {
		return nil, newError(KindTransport, customName,
			fmt.Errorf("status %d: %s", resp.StatusCode(), truncate(resp.String(), 256)))
	}
	body := resp.Body()
	if len(body) == 0 {
		return nil, newError(KindEmpty, customName, errors.New("empty response body"))
	}
	return body, nil
}

// Dimension implements Provider.
func (c *Custom) Dimension() int { return c.cfg.Dimension }

// Name implements Provider.
func (c *Custom) Name() string { return customName }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

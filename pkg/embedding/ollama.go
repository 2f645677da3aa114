package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

const ollamaName = "ollama"

// OllamaConfig configures the Ollama provider.
type OllamaConfig struct {
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// Ollama calls a local Ollama server's /api/embed endpoint.
type Ollama struct {
	client    *api.Client
	model     string
	dimension int
}

// NewOllama creates an Ollama provider.
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if cfg.Model == "" {
		return nil, newError(KindConfig, ollamaName, errors.New("model is required"))
	}
	if cfg.Dimension <= 0 {
		return nil, newError(KindConfig, ollamaName, errors.New("dimension must be positive"))
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, newError(KindConfig, ollamaName, fmt.Errorf("invalid base url %q", cfg.BaseURL))
	}

	return &Ollama{
		client:    api.NewClient(base, &http.Client{Timeout: cfg.Timeout}),
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

// Embed sends all texts in one request.
func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, newError(KindEmpty, ollamaName, errors.New("no input texts"))
	}

	resp, err := o.client.Embed(ctx, &api.EmbedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, classifyOllama(err)
	}
	if err := checkVectors(ollamaName, texts, resp.Embeddings, o.dimension); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

func classifyOllama(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusNotFound || statusErr.StatusCode == http.StatusBadRequest {
			return newError(KindModel, ollamaName, err)
		}
		return newError(KindTransport, ollamaName, err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return newError(KindMalformed, ollamaName, err)
	}
	return newError(KindTransport, ollamaName, err)
}

// Dimension implements Provider.
func (o *Ollama) Dimension() int { return o.dimension }

// Name implements Provider.
func (o *Ollama) Name() string { return ollamaName }

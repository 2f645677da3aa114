package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures an OpenAI or OpenAI-compatible provider.
type OpenAIConfig struct {
	// Name is reported by Name(). Defaults to "openai".
	Name      string
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration

	// SendDimensions asks the server to shorten vectors to Dimension. Only
	// the text-embedding-3 family accepts it.
	SendDimensions bool
}

// OpenAI calls the /embeddings endpoint through the official SDK.
type OpenAI struct {
	client         openai.Client
	name           string
	model          string
	dimension      int
	sendDimensions bool
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.Model == "" {
		return nil, newError(KindConfig, cfg.Name, errors.New("model is required"))
	}
	if cfg.Dimension <= 0 {
		return nil, newError(KindConfig, cfg.Name, errors.New("dimension must be positive"))
	}

	// Retries belong to the caller.
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAI{
		client:         openai.NewClient(opts...),
		name:           cfg.Name,
		model:          cfg.Model,
		dimension:      cfg.Dimension,
		sendDimensions: cfg.SendDimensions,
	}, nil
}

// Embed sends all texts in one request.
func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, newError(KindEmpty, o.name, errors.New("no input texts"))
	}

	params := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openai.EmbeddingModel(o.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if o.sendDimensions {
		params.Dimensions = openai.Int(int64(o.dimension))
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, o.classify(err)
	}
	if len(resp.Data) == 0 {
		return nil, newError(KindEmpty, o.name, nil)
	}
	if len(resp.Data) != len(texts) {
		return nil, newError(KindMalformed, o.name,
			fmt.Errorf("got %d vectors for %d texts", len(resp.Data), len(texts)))
	}

	// The API may answer out of order; Index ties each vector to its input.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, newError(KindMalformed, o.name, fmt.Errorf("index %d out of range", d.Index))
		}
		out[d.Index] = toFloat32(d.Embedding)
	}
	if err := checkVectors(o.name, texts, out, o.dimension); err != nil {
		return nil, err
	}
	return out, nil
}

func (o *OpenAI) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
			return newError(KindModel, o.name, err)
		}
		return newError(KindTransport, o.name, err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return newError(KindMalformed, o.name, err)
	}
	return newError(KindTransport, o.name, err)
}

// Dimension implements Provider.
func (o *OpenAI) Dimension() int { return o.dimension }

// Name implements Provider.
func (o *OpenAI) Name() string { return o.name }

package embedding

import (
	"fmt"
	"strings"

	"github.com/goclaw/agentmemory/config"
)

// Provider names accepted by New.
const (
	ProviderOpenAI           = "openai"
	ProviderOpenAICompatible = "openai_compatible"
	ProviderOllama           = "ollama"
	ProviderCustom           = "custom"
	ProviderLocal            = LocalName
)

// New builds the configured provider. Provider defaults (model, dimension,
// base URL) are resolved first; remote providers are throttled when
// RequestsPerSecond is positive.
func New(cfg config.EmbeddingConfig) (Provider, error) {
	cfg = cfg.ResolveEmbedding()

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI, ProviderOpenAICompatible:
		p, err = NewOpenAI(OpenAIConfig{
			Name:           cfg.Provider,
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			Dimension:      cfg.Dimension,
			Timeout:        cfg.Timeout,
			SendDimensions: cfg.Provider == ProviderOpenAI && strings.HasPrefix(cfg.Model, "text-embedding-3"),
		})
	case ProviderOllama:
		p, err = NewOllama(OllamaConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.Timeout,
		})
	case ProviderCustom:
		p, err = NewCustom(CustomConfig{
			URL:           cfg.Custom.URL,
			Headers:       cfg.Custom.Headers,
			Model:         cfg.Model,
			Dimension:     cfg.Dimension,
			Timeout:       cfg.Timeout,
			OpenAIFormat:  cfg.Custom.OpenAIFormat,
			TextField:     cfg.Custom.TextField,
			ResponseField: cfg.Custom.ResponseField,
		})
	case ProviderLocal:
		return NewLocal(cfg.Dimension), nil
	default:
		return nil, newError(KindConfig, cfg.Provider, fmt.Errorf("unknown provider %q", cfg.Provider))
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerSecond > 0 {
		p = NewLimited(p, cfg.RequestsPerSecond, cfg.Burst)
	}
	return p, nil
}

// Package embedding maps text to fixed-dimension float vectors.
//
// Remote providers (OpenAI and compatible APIs, Ollama, custom HTTP services)
// and a local hash-based fallback share the Provider interface. Every
// provider returns exactly one vector per input text, in input order, each of
// length Dimension().
package embedding

import (
	"context"
	"fmt"
)

// Provider computes embeddings.
type Provider interface {
	// Embed returns one vector per text, in the same order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension is the length of every returned vector.
	Dimension() int

	// Name identifies the provider in logs, metrics and errors.
	Name() string
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, p Provider, text string) ([]float32, error) {
	vectors, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// checkVectors enforces the provider contract on a decoded response.
func checkVectors(provider string, texts []string, vectors [][]float32, dimension int) error {
	if len(vectors) == 0 {
		return newError(KindEmpty, provider, nil)
	}
	if len(vectors) != len(texts) {
		return newError(KindMalformed, provider,
			fmt.Errorf("got %d vectors for %d texts", len(vectors), len(texts)))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return newError(KindEmpty, provider, fmt.Errorf("vector %d is empty", i))
		}
		if dimension > 0 && len(v) != dimension {
			return newError(KindModel, provider,
				fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), dimension))
		}
	}
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

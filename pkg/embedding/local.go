package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/goclaw/agentmemory/pkg/memory"
)

// LocalName is the provider name of the hash fallback.
const LocalName = "local"

// Local is an offline stand-in for an embedding model. Each lower-cased word
// is hashed into one of Dimension buckets and the counts are normalized, so
// texts sharing words score a positive cosine similarity. It is
// deterministic and needs no network, but it does not capture meaning and is
// not equivalent to a real model.
type Local struct {
	dimension int
}

// NewLocal creates a hash embedder producing vectors of the given dimension.
func NewLocal(dimension int) *Local {
	if dimension <= 0 {
		dimension = 384
	}
	return &Local{dimension: dimension}
}

// Embed hashes each text.
func (l *Local) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, newError(KindEmpty, LocalName, nil)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = l.vector(text)
	}
	return out, nil
}

func (l *Local) vector(text string) []float32 {
	v := make([]float32, l.dimension)
	words := Tokenize(text)
	if len(words) == 0 {
		// Whitespace-only input still gets a non-zero vector.
		v[0] = 1
		return v
	}
	for _, word := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		v[h.Sum32()%uint32(l.dimension)]++
	}
	return memory.Normalize(v)
}

// Dimension implements Provider.
func (l *Local) Dimension() int { return l.dimension }

// Name implements Provider.
func (l *Local) Name() string { return LocalName }

// Tokenize lower-cases text and splits it on anything that is not a letter
// or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

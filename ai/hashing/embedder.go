package hashing

import (
	"context"
	"hash/fnv"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/poiesic/coverwise/ai"
)

// Embedder implements ai.Embedder with feature hashing.
type Embedder struct {
	dims    int
	bigrams bool
	logger  *slog.Logger
}

// NewEmbedder creates a hashing embedder with dims dimensions.
func NewEmbedder(dims int) (ai.Embedder, error) {
	return newEmbedder(dims)
}

func newEmbedder(dims int) (*Embedder, error) {
	if dims <= 0 {
		return nil, ai.ErrDimensionMismatch
	}
	return &Embedder{
		dims:    dims,
		bigrams: true,
		logger:  slog.Default().With("component", "hashing-embedder"),
	}, nil
}

// EmbedText returns the hashed vector for text. Text with no tokens yields
// the zero vector.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.embed(text), nil
}

// EmbedTexts embeds each text independently.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

// Dimensions returns the vector length.
func (e *Embedder) Dimensions() int {
	return e.dims
}

func (e *Embedder) embed(text string) []float32 {
	tokens := tokenize(text)
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	if e.bigrams {
		for i := 1; i < len(tokens); i++ {
			counts[tokens[i-1]+" "+tokens[i]]++
		}
	}

	// Colliding features are summed in key order so the same text always
	// produces the same bits.
	acc := make([]float64, e.dims)
	for _, feature := range slices.Sorted(maps.Keys(counts)) {
		idx, sign := e.bucket(feature)
		acc[idx] += sign * (1 + math.Log(float64(counts[feature])))
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	vector := make([]float32, e.dims)
	if norm == 0 {
		return vector
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		vector[i] = float32(v / norm)
	}
	return vector
}

func (e *Embedder) bucket(feature string) (int, float64) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1.0
	}
	return int(sum % uint64(e.dims)), sign
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/poiesic/coverwise/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestEmbedderIsDeterministicAndNormalized(t *testing.T) {
	e, err := NewEmbedder(128)
	require.NoError(t, err)
	ctx := context.Background()

	a, err := e.EmbedText(ctx, "Turbocharger failure is excluded")
	require.NoError(t, err)
	b, err := e.EmbedText(ctx, "turbocharger FAILURE is excluded!")
	require.NoError(t, err)

	assert.Len(t, a, 128)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, cosine(a, a), 1e-5)
}

func TestEmbedderRepeatsExactly(t *testing.T) {
	// Eight buckets force many features to collide.
	e, err := NewEmbedder(8)
	require.NoError(t, err)
	ctx := context.Background()
	text := "engine pistons crankshaft cylinder head turbo supercharger gearbox clutch brakes rotors pads deductible cap claim"

	first, err := e.EmbedText(ctx, text)
	require.NoError(t, err)
	for range 200 {
		again, err := e.EmbedText(ctx, text)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestEmbedderSharedVocabularyIsSimilar(t *testing.T) {
	e, err := NewEmbedder(512)
	require.NoError(t, err)
	ctx := context.Background()

	vecs, err := e.EmbedTexts(ctx, []string{
		"engine pistons are covered",
		"pistons in the engine are covered up to the cap",
		"windscreen chips repaired at no cost",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	assert.Greater(t, cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))
}

func TestEmbedderEmptyText(t *testing.T) {
	e, err := NewEmbedder(8)
	require.NoError(t, err)

	v, err := e.EmbedText(context.Background(), "  ...  ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), v)
}

func TestEmbedderRejectsBadDimensions(t *testing.T) {
	_, err := NewEmbedder(0)
	assert.ErrorIs(t, err, ai.ErrDimensionMismatch)
}

func TestEmbedderHonoursCancellation(t *testing.T) {
	e, err := NewEmbedder(8)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = e.EmbedTexts(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProvider(t *testing.T) {
	p, err := NewProvider(ai.NewConfig(ai.WithProvider(ai.ProviderHashing), ai.WithEmbeddingDimensions(32)))
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 32, p.Embedder().Dimensions())
	_, err = p.Generator().Generate(context.Background(), "classify")
	assert.ErrorIs(t, err, ai.ErrGenerationUnavailable)
}

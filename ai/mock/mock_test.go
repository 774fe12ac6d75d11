package mock

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedderDefaults(t *testing.T) {
	m := NewMockEmbedderWithDimensions(16)
	ctx := context.Background()

	a, err := m.EmbedText(ctx, "pistons")
	require.NoError(t, err)
	b, err := m.EmbedText(ctx, "pistons")
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.Equal(t, a, b)
	assert.Equal(t, 16, m.Dimensions())
	assert.Equal(t, 2, m.CallCount())

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)

	vecs, err := m.EmbedTexts(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)

	m.Reset()
	assert.Equal(t, 0, m.CallCount())
}

func TestMockGeneratorRecordsPrompts(t *testing.T) {
	g := NewMockGenerator()
	g.GenerateFunc = func(_ context.Context, prompt string) (string, error) {
		return "echo: " + prompt, nil
	}

	out, err := g.Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", out)
	assert.Equal(t, []string{"hello"}, g.Prompts())
	assert.Equal(t, 1, g.CallCount())

	g.Reset()
	out, err = g.Generate(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider().(*MockProvider)
	assert.Same(t, p.GetMockEmbedder(), p.Embedder())
	assert.Same(t, p.GetMockGenerator(), p.Generator())
	require.NoError(t, p.Close())
	assert.True(t, p.Closed())
}

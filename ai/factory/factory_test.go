package factory

import (
	"testing"

	"github.com/poiesic/coverwise/ai"
	"github.com/poiesic/coverwise/ai/hashing"
	"github.com/poiesic/coverwise/ai/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	t.Run("hashing", func(t *testing.T) {
		p, err := NewProvider(ai.NewConfig(ai.WithProvider(ai.ProviderHashing), ai.WithEmbeddingDimensions(16)))
		require.NoError(t, err)
		assert.IsType(t, &hashing.Provider{}, p)
		assert.Equal(t, 16, p.Embedder().Dimensions())
	})

	t.Run("openai", func(t *testing.T) {
		p, err := NewProvider(ai.NewConfig(ai.WithEmbeddingDimensions(8)))
		require.NoError(t, err)
		assert.IsType(t, &openai.Provider{}, p)
		assert.Equal(t, 8, p.Embedder().Dimensions())
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewProvider(&ai.Config{Provider: "bedrock", EmbeddingDimensions: 8})
		assert.ErrorIs(t, err, ai.ErrUnknownProvider)
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewProvider(ai.NewConfig(ai.WithEmbeddingDimensions(0)))
		assert.Error(t, err)
	})
}

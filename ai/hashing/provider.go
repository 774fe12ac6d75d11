package hashing

import (
	"context"

	"github.com/poiesic/coverwise/ai"
)

// Provider implements ai.AIProvider without any network dependency.
type Provider struct {
	embedder *Embedder
}

// NewProvider creates an offline provider. Only EmbeddingDimensions is read
// from config.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	embedder, err := newEmbedder(config.EmbeddingDimensions)
	if err != nil {
		return nil, err
	}
	return &Provider{embedder: embedder}, nil
}

// Embedder returns the hashing embedder.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Generator returns a generator that is always unavailable.
func (p *Provider) Generator() ai.TextGenerator {
	return unavailableGenerator{}
}

// Close is a no-op.
func (p *Provider) Close() error {
	return nil
}

type unavailableGenerator struct{}

func (unavailableGenerator) Generate(context.Context, string) (string, error) {
	return "", ai.ErrGenerationUnavailable
}

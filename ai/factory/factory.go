// Package factory selects an ai.AIProvider implementation from configuration.
package factory

import (
	"fmt"

	"github.com/poiesic/coverwise/ai"
	"github.com/poiesic/coverwise/ai/hashing"
	"github.com/poiesic/coverwise/ai/openai"
)

// NewProvider validates config and builds the provider it names.
// The choice is made once here; callers only see ai.AIProvider.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if config == nil {
		config = ai.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Provider {
	case ai.ProviderOpenAI:
		return openai.NewProvider(config)
	case ai.ProviderHashing:
		return hashing.NewProvider(config)
	}
	return nil, fmt.Errorf("%w: %q", ai.ErrUnknownProvider, config.Provider)
}

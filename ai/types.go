package ai

import (
	"errors"
	"fmt"
)

// ProviderKind selects the concrete AI provider implementation.
type ProviderKind string

const (
	// ProviderOpenAI talks to any OpenAI-compatible HTTP API (OpenAI, Ollama, vLLM).
	ProviderOpenAI ProviderKind = "openai"

	// ProviderHashing embeds offline with feature hashing and has no generator.
	ProviderHashing ProviderKind = "hashing"
)

// ProviderKinds lists the supported providers.
var ProviderKinds = []ProviderKind{ProviderOpenAI, ProviderHashing}

var (
	// ErrDimensionMismatch is returned when a vector's length differs from
	// the configured dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrGenerationUnavailable is returned by providers that cannot generate text.
	ErrGenerationUnavailable = errors.New("text generation unavailable")

	// ErrUnknownProvider is returned for an unrecognised ProviderKind.
	ErrUnknownProvider = errors.New("unknown AI provider")
)

// ParseProviderKind converts a configuration string into a ProviderKind.
func ParseProviderKind(s string) (ProviderKind, error) {
	for _, k := range ProviderKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// CheckDimensions verifies that every vector has exactly dims elements.
func CheckDimensions(vectors [][]float32, dims int) error {
	for i, v := range vectors {
		if len(v) != dims {
			return fmt.Errorf("%w: vector %d has %d dimensions, expected %d", ErrDimensionMismatch, i, len(v), dims)
		}
	}
	return nil
}

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"engine", "pistons", "15", "000", "covered"},
		Tokenize("Engine PISTONS: $15,000 (covered)!"))
	assert.Equal(t, []string{"café", "über"}, Tokenize("Café-Über"))
	assert.Empty(t, Tokenize("  ...  "))
}

func TestContentTokens(t *testing.T) {
	assert.Equal(t, []string{"turbo", "not", "covered"}, ContentTokens("Is the turbo not covered?"))
}

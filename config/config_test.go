package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/coverwise/ai"
	"github.com/poiesic/coverwise/chunker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Empty(t, cfg.DataDir)
	assert.Equal(t, chunker.StrategyHybrid, cfg.Chunker.Strategy)
	assert.True(t, cfg.Rerank.Enabled)
	assert.False(t, cfg.Classifier.UseLLM)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, "coverwise.yaml", `
data_dir: /var/lib/coverwise
ai:
  provider: hashing
  embedding_dimensions: 256
chunker:
  strategy: fixed_size
  chunk_size: 1000
  chunk_overlap: 100
  min_chunk_size: 50
search:
  top_k: 5
policies:
  files: [motor.yaml]
  watch: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/coverwise", cfg.DataDir)
	assert.Equal(t, "hashing", cfg.AI.Provider)
	assert.Equal(t, 256, cfg.AI.EmbeddingDimensions)
	assert.Equal(t, chunker.StrategyFixedSize, cfg.Chunker.Strategy)
	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)
	assert.Equal(t, 5, cfg.Search.TopK)
	assert.Equal(t, []string{"motor.yaml"}, cfg.Policies.Files)
	assert.True(t, cfg.Policies.Watch)

	// Untouched sections keep their defaults
	assert.Equal(t, Default().Search.SemanticWeight, cfg.Search.SemanticWeight)
	assert.Equal(t, Default().Ingestion, cfg.Ingestion)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "colour: blue\n"},
		{"malformed yaml", "search: [\n"},
		{"bad chunker", "chunker:\n  chunk_size: 10\n  chunk_overlap: 20\n"},
		{"zero weights", "search:\n  keyword_weight: 0\n  semantic_weight: 0\n"},
		{"bad provider", "ai:\n  provider: carrier-pigeon\n"},
		{"classifier batch too large", "classifier:\n  batch_size: 500\n"},
		{"negative retries", "ingestion:\n  retries: -1\n"},
		{"bm25 b out of range", "search:\n  b: 1.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "bad.yaml", tt.content))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "coverwise.yaml")
	cfg := Default()
	cfg.DataDir = "data"
	cfg.Policies.Files = []string{"a.yaml", "b.json"}

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestAIConfigReadsKeyFromEnvironment(t *testing.T) {
	t.Setenv("TEST_COVERWISE_KEY", "sk-test")
	cfg := Default()
	cfg.AI.APIKeyEnv = "TEST_COVERWISE_KEY"
	cfg.AI.Provider = string(ai.ProviderHashing)

	aiCfg := cfg.AIConfig()
	assert.Equal(t, "sk-test", aiCfg.APIKey)
	assert.Equal(t, ai.ProviderHashing, aiCfg.Provider)
	assert.Equal(t, cfg.AI.EmbeddingDimensions, aiCfg.EmbeddingDimensions)

	cfg.AI.APIKeyEnv = ""
	assert.Empty(t, cfg.APIKey())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvDataDir, "/tmp/cw")
	t.Setenv(EnvProvider, "hashing")
	t.Setenv(EnvEmbeddingDimensions, "128")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "/tmp/cw", cfg.DataDir)
	assert.Equal(t, "hashing", cfg.AI.Provider)
	assert.Equal(t, 128, cfg.AI.EmbeddingDimensions)
	assert.Equal(t, Default().AI.EmbeddingModel, cfg.AI.EmbeddingModel)

	t.Setenv(EnvEmbeddingDimensions, "many")
	assert.ErrorIs(t, cfg.ApplyEnv(), ErrInvalidConfig)
}

func TestLoadEnv(t *testing.T) {
	path := writeFile(t, "test.env", "COVERWISE_TEST_LOADENV=from-file\n")
	t.Setenv("COVERWISE_TEST_LOADENV", "")
	os.Unsetenv("COVERWISE_TEST_LOADENV")

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-file", os.Getenv("COVERWISE_TEST_LOADENV"))

	assert.Error(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLoadEnvDoesNotOverride(t *testing.T) {
	path := writeFile(t, "test.env", "COVERWISE_TEST_KEEP=from-file\n")
	t.Setenv("COVERWISE_TEST_KEEP", "from-shell")

	require.NoError(t, LoadEnv(path))
	assert.Equal(t, "from-shell", os.Getenv("COVERWISE_TEST_KEEP"))
}

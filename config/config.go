// Package config loads the application configuration from YAML and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/poiesic/coverwise/ai"
	"github.com/poiesic/coverwise/chunker"
	"github.com/poiesic/coverwise/classify"
	"github.com/poiesic/coverwise/ingestion"
	"github.com/poiesic/coverwise/metrics"
	"github.com/poiesic/coverwise/rerank"
	"github.com/poiesic/coverwise/search"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when the configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// AIConfig selects and configures the model provider. The API key is never
// read from the file; APIKeyEnv names the variable that holds it.
type AIConfig struct {
	Provider            string `yaml:"provider"`
	EmbeddingHost       string `yaml:"embedding_host"`
	ClassifierHost      string `yaml:"classifier_host"`
	EmbeddingModel      string `yaml:"embedding_model"`
	ClassifierModel     string `yaml:"classifier_model"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
	APIKeyEnv           string `yaml:"api_key_env"`
}

// ClassifierConfig configures chunk classification.
type ClassifierConfig struct {
	// UseLLM classifies with the provider's generator; otherwise keyword
	// rules alone are used.
	UseLLM            bool    `yaml:"use_llm"`
	BatchSize         int     `yaml:"batch_size"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// SearchConfig configures the hybrid search engine.
type SearchConfig struct {
	KeywordWeight     float64 `yaml:"keyword_weight"`
	SemanticWeight    float64 `yaml:"semantic_weight"`
	TopK              int     `yaml:"top_k"`
	K1                float64 `yaml:"k1"`
	B                 float64 `yaml:"b"`
	KeywordNormalizer float64 `yaml:"keyword_normalizer"`
}

// RerankConfig configures the heuristic reranker.
type RerankConfig struct {
	Enabled        bool    `yaml:"enabled"`
	OriginalWeight float64 `yaml:"original_weight"`
	RerankWeight   float64 `yaml:"rerank_weight"`
}

// IngestionConfig configures the ingestion pipeline.
type IngestionConfig struct {
	PoolSize  int `yaml:"pool_size"` // 0 picks a size from the CPU count
	BatchSize int `yaml:"batch_size"`
	Retries   int `yaml:"retries"`
}

// PolicyConfig lists policy files to load at startup.
type PolicyConfig struct {
	Files []string `yaml:"files"`
	Watch bool     `yaml:"watch"`
}

// MetricsConfig configures Prometheus metric names.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Config is the root application configuration.
type Config struct {
	// DataDir is the badger directory. Empty keeps everything in memory.
	DataDir    string           `yaml:"data_dir"`
	AI         AIConfig         `yaml:"ai"`
	Chunker    chunker.Config   `yaml:"chunker"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Search     SearchConfig     `yaml:"search"`
	Rerank     RerankConfig     `yaml:"rerank"`
	Ingestion  IngestionConfig  `yaml:"ingestion"`
	Policies   PolicyConfig     `yaml:"policies"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// Default returns the built-in configuration.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		AI: AIConfig{
			Provider:            string(aiDefaults.Provider),
			EmbeddingHost:       aiDefaults.EmbeddingHost,
			ClassifierHost:      aiDefaults.ClassifierHost,
			EmbeddingModel:      aiDefaults.EmbeddingModel,
			ClassifierModel:     aiDefaults.ClassifierModel,
			EmbeddingDimensions: aiDefaults.EmbeddingDimensions,
			APIKeyEnv:           DefaultAPIKeyEnv,
		},
		Chunker: chunker.DefaultConfig(),
		Classifier: ClassifierConfig{
			BatchSize:         classify.MaxBatchSize,
			RequestsPerSecond: classify.DefaultRequestsPerSecond,
		},
		Search: SearchConfig{
			KeywordWeight:     search.DefaultKeywordWeight,
			SemanticWeight:    search.DefaultSemanticWeight,
			TopK:              search.DefaultTopK,
			K1:                search.DefaultK1,
			B:                 search.DefaultB,
			KeywordNormalizer: search.DefaultKeywordNormalizer,
		},
		Rerank: RerankConfig{
			Enabled:        true,
			OriginalWeight: rerank.DefaultOriginalWeight,
			RerankWeight:   rerank.DefaultRerankWeight,
		},
		Ingestion: IngestionConfig{
			BatchSize: ingestion.DefaultBatchSize,
			Retries:   ingestion.DefaultRetries,
		},
		Metrics: MetricsConfig{Namespace: metrics.DefaultNamespace},
	}
}

// Load reads the YAML file at path over the defaults. A missing file yields
// the defaults; unknown keys are an error. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, cfg.Validate()
		}
		return nil, err
	}
	if err := decode(bytes.NewReader(data), cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Save writes cfg to path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// AIConfig builds the provider configuration, reading the API key from the
// environment.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(ai.ProviderKind(c.AI.Provider)),
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithClassifierHost(c.AI.ClassifierHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithClassifierModel(c.AI.ClassifierModel),
		ai.WithEmbeddingDimensions(c.AI.EmbeddingDimensions),
		ai.WithAPIKey(c.APIKey()),
	)
}

// APIKey returns the value of the configured API key variable.
func (c *Config) APIKey() string {
	if c.AI.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.AI.APIKeyEnv)
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if err := c.Chunker.Validate(); err != nil {
		return fmt.Errorf("%w: chunker: %w", ErrInvalidConfig, err)
	}
	if err := c.AIConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Classifier.BatchSize < 1 || c.Classifier.BatchSize > classify.MaxBatchSize {
		return fmt.Errorf("%w: classifier batch size must be in [1, %d], got %d",
			ErrInvalidConfig, classify.MaxBatchSize, c.Classifier.BatchSize)
	}
	s := c.Search
	if s.KeywordWeight < 0 || s.SemanticWeight < 0 || s.KeywordWeight+s.SemanticWeight == 0 {
		return fmt.Errorf("%w: search weights must be non-negative and not both zero", ErrInvalidConfig)
	}
	if s.TopK < 1 {
		return fmt.Errorf("%w: search top_k must be positive, got %d", ErrInvalidConfig, s.TopK)
	}
	if s.KeywordNormalizer <= 0 {
		return fmt.Errorf("%w: search keyword_normalizer must be positive", ErrInvalidConfig)
	}
	if s.K1 < 0 || s.B < 0 || s.B > 1 {
		return fmt.Errorf("%w: bm25 needs k1 >= 0 and b in [0, 1]", ErrInvalidConfig)
	}
	r := c.Rerank
	if r.OriginalWeight < 0 || r.RerankWeight < 0 || r.OriginalWeight+r.RerankWeight == 0 {
		return fmt.Errorf("%w: rerank weights must be non-negative and not both zero", ErrInvalidConfig)
	}
	if c.Ingestion.BatchSize < 1 {
		return fmt.Errorf("%w: ingestion batch size must be positive, got %d", ErrInvalidConfig, c.Ingestion.BatchSize)
	}
	if c.Ingestion.PoolSize < 0 || c.Ingestion.Retries < 0 {
		return fmt.Errorf("%w: ingestion pool size and retries must not be negative", ErrInvalidConfig)
	}
	return nil
}

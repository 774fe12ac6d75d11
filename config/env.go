package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// DefaultAPIKeyEnv holds the provider API key unless the file names another.
const DefaultAPIKeyEnv = "COVERWISE_API_KEY"

// Environment variables that override file values.
const (
	EnvDataDir             = "COVERWISE_DATA_DIR"
	EnvProvider            = "COVERWISE_PROVIDER"
	EnvEmbeddingHost       = "COVERWISE_EMBEDDING_HOST"
	EnvClassifierHost      = "COVERWISE_CLASSIFIER_HOST"
	EnvEmbeddingModel      = "COVERWISE_EMBEDDING_MODEL"
	EnvClassifierModel     = "COVERWISE_CLASSIFIER_MODEL"
	EnvEmbeddingDimensions = "COVERWISE_EMBEDDING_DIMENSIONS"
)

// LoadEnv loads variables from .env files without overriding ones already
// set. With no arguments it reads ./.env; a missing ./.env is not an error,
// but a missing file named explicitly is.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		err := godotenv.Load()
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(files...)
}

// ApplyEnv overlays COVERWISE_* variables onto c. Unset variables leave the
// field unchanged.
func (c *Config) ApplyEnv() error {
	set := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	set(EnvDataDir, &c.DataDir)
	set(EnvProvider, &c.AI.Provider)
	set(EnvEmbeddingHost, &c.AI.EmbeddingHost)
	set(EnvClassifierHost, &c.AI.ClassifierHost)
	set(EnvEmbeddingModel, &c.AI.EmbeddingModel)
	set(EnvClassifierModel, &c.AI.ClassifierModel)

	if v, ok := os.LookupEnv(EnvEmbeddingDimensions); ok {
		dims, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvEmbeddingDimensions, err)
		}
		c.AI.EmbeddingDimensions = dims
	}
	return nil
}

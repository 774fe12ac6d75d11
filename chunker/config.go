// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package chunker

import (
	"errors"
	"fmt"
)

// Strategy selects how text is split into chunks.
type Strategy string

const (
	StrategyFixedSize Strategy = "fixed_size"
	StrategySentence  Strategy = "sentence"
	StrategyParagraph Strategy = "paragraph"
	StrategySemantic  Strategy = "semantic"
	StrategyHybrid    Strategy = "hybrid"
)

const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
	DefaultMinChunkSize = 100
)

var (
	// ErrInvalidConfig indicates chunker configuration failed validation.
	ErrInvalidConfig = errors.New("invalid chunker configuration")

	// ErrUnknownStrategy indicates an unsupported chunking strategy.
	ErrUnknownStrategy = errors.New("unknown chunking strategy")
)

// Config holds chunker parameters. Sizes are measured in characters (runes).
type Config struct {
	Strategy     Strategy `yaml:"strategy"`
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap int      `yaml:"chunk_overlap"`
	MinChunkSize int      `yaml:"min_chunk_size"`
}

// DefaultConfig returns the hybrid strategy with 512/50/100 sizing.
func DefaultConfig() Config {
	return Config{
		Strategy:     StrategyHybrid,
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		MinChunkSize: DefaultMinChunkSize,
	}
}

// ParseStrategy converts a name into a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch s := Strategy(name); s {
	case StrategyFixedSize, StrategySentence, StrategyParagraph, StrategySemantic, StrategyHybrid:
		return s, nil
	case "":
		return StrategyHybrid, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", ErrInvalidConfig, c.ChunkSize, c.ChunkOverlap)
	}
	if c.MinChunkSize < 0 || c.MinChunkSize > c.ChunkSize {
		return fmt.Errorf("%w: min chunk size must be in [0, %d], got %d", ErrInvalidConfig, c.ChunkSize, c.MinChunkSize)
	}
	return nil
}

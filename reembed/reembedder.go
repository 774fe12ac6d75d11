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

package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/poiesic/coverwise/ai"
	"github.com/poiesic/coverwise/core"
	"github.com/poiesic/coverwise/storage"
	"golang.org/x/sync/errgroup"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks sent per embedding request
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per embedding request
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// MaxRetryDelay caps a single backoff wait; zero means no cap
	MaxRetryDelay time.Duration

	// Concurrency is the number of batches embedded at once
	Concurrency int

	// PolicyID restricts reembedding to one policy; empty means all
	PolicyID string

	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		MaxRetryDelay:  30 * time.Second,
		Concurrency:    2,
	}
}

// Reembedder copies every chunk of a source index into a target index with
// embeddings from a new model.
type Reembedder struct {
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *ChunkIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder. source and target may be the same
// index when the embedder keeps its dimensionality.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(source, target storage.VectorIndex, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if source == nil || target == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if embedder.Dimensions() != target.Dimensions() {
		return nil, fmt.Errorf("%w: embedder %d, target %d",
			ErrDimensionMismatch, embedder.Dimensions(), target.Dimensions())
	}
	if config.MaxRetries <= 0 {
		return nil, ErrInvalidMaxAttempts
	}
	if progress == nil {
		progress = io.Discard
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "reembed")

	backoff := Backoff{
		MaxAttempts: config.MaxRetries,
		BaseDelay:   config.RetryDelay,
		MaxDelay:    config.MaxRetryDelay,
		Logger:      logger,
	}

	return &Reembedder{
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(target, embedder, backoff),
		iterator:  NewChunkIterator(source, config.PolicyID, config.BatchSize),
		logger:    logger,
	}, nil
}

// Run re-embeds every selected chunk and returns how many were written.
// On error, batches already written stay in the target index.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	total, err := r.iterator.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks found in index (0 chunks)\n")
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d chunks (batch size: %d)\n",
		total, r.iterator.batchSize)
	r.logger.Info("starting reembedding", "chunks", total, "policy_id", r.config.PolicyID)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	concurrency := r.config.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var processed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	iterErr := r.iterator.ForEach(gctx, func(batch []*core.DocumentChunk) error {
		g.Go(func() error {
			if err := r.processor.Process(gctx, batch); err != nil {
				return fmt.Errorf("failed to process batch starting at %s: %w", batch[0].ID, err)
			}
			processed.Add(int64(len(batch)))
			tracker.Increment(len(batch))
			return nil
		})
		return nil
	})

	waitErr := g.Wait()
	tracker.Finish()
	done := int(processed.Load())

	if waitErr != nil {
		r.logger.Error("reembedding failed", "processed", done, "err", waitErr)
		return done, waitErr
	}
	if iterErr != nil {
		return done, iterErr
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d chunks in %v (%.1f chunks/sec)\n",
		done, elapsed.Round(time.Millisecond), float64(done)/max(elapsed.Seconds(), 1e-9))
	r.logger.Info("reembedding complete", "chunks", done, "elapsed", elapsed)
	return done, nil
}

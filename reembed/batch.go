package reembed

import (
	"context"
	"fmt"

	"github.com/poiesic/coverwise/ai"
	"github.com/poiesic/coverwise/core"
	"github.com/poiesic/coverwise/storage"
)

// BatchProcessor embeds batches of chunks and writes them to a target index.
type BatchProcessor struct {
	target   storage.VectorIndex
	embedder ai.Embedder
	backoff  Backoff
}

// NewBatchProcessor creates a new batch processor. Each embedding request is
// retried according to backoff.
func NewBatchProcessor(target storage.VectorIndex, embedder ai.Embedder, backoff Backoff) *BatchProcessor {
	return &BatchProcessor{
		target:   target,
		embedder: embedder,
		backoff:  backoff,
	}
}

// Process re-embeds a batch and stores copies of the chunks in the target
// index. Vectors are normalized so cosine scores stay comparable across
// models. The input chunks are not modified.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []*core.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	var embeddings [][]float32
	err := bp.backoff.Do(ctx, func(ctx context.Context) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.backoff.MaxAttempts, err)
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(embeddings))
	}
	if err := ai.CheckDimensions(embeddings, bp.target.Dimensions()); err != nil {
		return err
	}

	updated := make([]*core.DocumentChunk, len(chunks))
	for i, c := range chunks {
		updated[i] = c.Clone()
		updated[i].Embedding = NormalizeVector(embeddings[i])
	}

	if err := bp.target.AddMany(ctx, updated...); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	return nil
}

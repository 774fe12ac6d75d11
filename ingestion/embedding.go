package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/coverwise/ai"
	"github.com/poiesic/coverwise/core"
)

// embeddingProcessor generates embeddings for chunks in sub-batches.
type embeddingProcessor struct {
	embedder  ai.Embedder
	pool      *ants.Pool
	dims      int
	batchSize int
	retries   int
	logger    *slog.Logger
}

var _ processor = (*embeddingProcessor)(nil)

// newEmbeddingProcessor creates a new embedding processor.
func newEmbeddingProcessor(embedder ai.Embedder, pool *ants.Pool, dims, batchSize, retries int, logger *slog.Logger) (*embeddingProcessor, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if pool == nil {
		return nil, fmt.Errorf("worker pool required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &embeddingProcessor{
		embedder:  embedder,
		pool:      pool,
		dims:      dims,
		batchSize: batchSize,
		retries:   retries,
		logger:    logger.With("processor", "embeddings"),
	}, nil
}

// process embeds every chunk. Each sub-batch runs on the pool; a batch whose
// request fails is retried one chunk at a time so a single bad input does
// not sink its neighbours.
func (ep *embeddingProcessor) process(ctx context.Context, chunks []*core.DocumentChunk) []ChunkFailure {
	ep.logger.Info("processing chunks for embeddings", "chunks", len(chunks))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []ChunkFailure
	)
	record := func(f []ChunkFailure) {
		if len(f) == 0 {
			return
		}
		mu.Lock()
		failures = append(failures, f...)
		mu.Unlock()
	}

	for start := 0; start < len(chunks); start += ep.batchSize {
		end := min(start+ep.batchSize, len(chunks))
		offset, batch := start, chunks[start:end]

		wg.Add(1)
		err := ep.pool.Submit(func() {
			defer wg.Done()
			record(ep.embedBatch(ctx, offset, batch))
		})
		if err != nil {
			wg.Done()
			ep.logger.Error("error submitting embedding batch", "err", err)
			f := make([]ChunkFailure, len(batch))
			for i, c := range batch {
				f[i] = ChunkFailure{Index: offset + i, ChunkID: c.ID, Stage: StageEmbed, Err: err}
			}
			record(f)
		}
	}
	wg.Wait()

	slices.SortFunc(failures, func(a, b ChunkFailure) int { return a.Index - b.Index })
	return failures
}

func (ep *embeddingProcessor) embedBatch(ctx context.Context, offset int, batch []*core.DocumentChunk) []ChunkFailure {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	ep.logger.Debug("generating embeddings for batch", "offset", offset, "chunks", len(texts))
	vectors, err := ep.embedder.EmbedTexts(ctx, texts)
	if err == nil && len(vectors) != len(batch) {
		err = fmt.Errorf("embedding result mismatch. expected %d, received %d", len(batch), len(vectors))
	}
	if err == nil {
		var failures []ChunkFailure
		for i, v := range vectors {
			if len(v) != ep.dims {
				failures = append(failures, ChunkFailure{
					Index: offset + i, ChunkID: batch[i].ID, Stage: StageEmbed,
					Err: fmt.Errorf("%w: got %d, expected %d", ai.ErrDimensionMismatch, len(v), ep.dims),
				})
				continue
			}
			batch[i].Embedding = v
		}
		return failures
	}

	ep.logger.Warn("batch embedding failed, retrying per chunk", "offset", offset, "chunks", len(batch), "err", err)
	var failures []ChunkFailure
	for i, c := range batch {
		if err := ep.embedOne(ctx, c); err != nil {
			failures = append(failures, ChunkFailure{Index: offset + i, ChunkID: c.ID, Stage: StageEmbed, Err: err})
		}
	}
	return failures
}

func (ep *embeddingProcessor) embedOne(ctx context.Context, chunk *core.DocumentChunk) error {
	var lastErr error
	for attempt := 0; attempt <= ep.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		v, err := ep.embedder.EmbedText(ctx, chunk.Text)
		if err != nil {
			lastErr = err
			continue
		}
		if len(v) != ep.dims {
			return fmt.Errorf("%w: got %d, expected %d", ai.ErrDimensionMismatch, len(v), ep.dims)
		}
		chunk.Embedding = v
		return nil
	}
	return lastErr
}

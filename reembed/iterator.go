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

	"github.com/poiesic/coverwise/core"
	"github.com/poiesic/coverwise/storage"
)

const (
	// DefaultBatchSize is the default number of chunks in each batch
	DefaultBatchSize = 100
)

// ChunkIterator walks the chunks of a vector index in batches.
type ChunkIterator struct {
	index     storage.VectorIndex
	policyID  string
	batchSize int
}

// NewChunkIterator creates a new chunk iterator over every chunk of policyID,
// or of all policies when policyID is empty.
// batchSize: number of chunks in each batch (DefaultBatchSize when <= 0)
func NewChunkIterator(index storage.VectorIndex, policyID string, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &ChunkIterator{
		index:     index,
		policyID:  policyID,
		batchSize: batchSize,
	}
}

// Count returns the number of chunks the iterator will visit.
func (it *ChunkIterator) Count(ctx context.Context) (int, error) {
	chunks, err := it.index.ListChunks(ctx, it.policyID)
	if err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// ForEach calls fn for each batch in chunk id order.
// Iteration stops on first error from fn or when all chunks are visited.
// Context cancellation is checked between batches.
func (it *ChunkIterator) ForEach(ctx context.Context, fn func([]*core.DocumentChunk) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	chunks, err := it.index.ListChunks(ctx, it.policyID)
	if err != nil {
		return err
	}

	for i := 0; i < len(chunks); i += it.batchSize {
		end := min(i+it.batchSize, len(chunks))
		if err := fn(chunks[i:end]); err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}

package classify

import (
	"context"

	"github.com/poiesic/coverwise/core"
)

// Classifier labels chunk text with one of the six chunk types.
// Implementations must be safe for concurrent use.
type Classifier interface {
	// Classify returns the type of a single chunk. It never fails; on any
	// internal error the keyword result is returned.
	Classify(ctx context.Context, text string) core.ChunkType

	// ClassifyBatch returns one Result per input text, in input order.
	ClassifyBatch(ctx context.Context, texts []string) []Result
}

// Result is the outcome of classifying one chunk.
type Result struct {
	Type core.ChunkType

	// Fallback is true when the keyword classifier produced Type because
	// the primary path failed for this chunk.
	Fallback bool

	// Err records why the primary path failed. It is nil when Fallback is false.
	Err error
}

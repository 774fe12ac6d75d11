package reembed

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrDimensionMismatch is returned when the embedder does not produce
	// vectors of the target index's dimensionality.
	ErrDimensionMismatch = errors.New("embedder and target index dimensions differ")

	// ErrIndexRequired is returned when a source or target index is missing.
	ErrIndexRequired = errors.New("source and target index required")

	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")
)

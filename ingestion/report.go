package ingestion

import (
	"errors"
	"fmt"
	"time"
)

// Stage names the pipeline step at which a chunk failed.
type Stage string

const (
	StageEmbed Stage = "embed"
	StageStore Stage = "store"
	StageIndex Stage = "index"
)

// ChunkFailure records why one chunk of a document was not indexed.
type ChunkFailure struct {
	Index   int
	ChunkID string
	Stage   Stage
	Err     error
}

func (f ChunkFailure) Error() string {
	return fmt.Sprintf("chunk %d (%s) failed at %s: %v", f.Index, f.ChunkID, f.Stage, f.Err)
}

func (f ChunkFailure) Unwrap() error {
	return f.Err
}

// Report summarises one ingestion.
type Report struct {
	PolicyID   string
	DocumentID string

	// Chunks is the number of chunks the document was split into.
	Chunks int

	// Stored is the number of chunks written to the vector index.
	Stored int

	// Replaced is the number of chunks from a previous ingestion of the
	// same document that were removed.
	Replaced int

	// Fallbacks counts chunks labelled by the keyword fallback classifier.
	Fallbacks int

	Failures []ChunkFailure
	Duration time.Duration
}

// Err joins every chunk failure, or returns nil when all chunks were stored.
func (r *Report) Err() error {
	if r == nil || len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Observer receives ingestion events. The metrics package implements it.
type Observer interface {
	ChunksIngested(n int)
	ChunkFailed(stage Stage)
	ClassifierFallback()
}

type noopObserver struct{}

func (noopObserver) ChunksIngested(int)  {}
func (noopObserver) ChunkFailed(Stage)   {}
func (noopObserver) ClassifierFallback() {}

package storage

import (
	"context"

	"github.com/poiesic/coverwise/core"
)

// Filters restrict a vector search. Empty fields match everything.
type Filters struct {
	PolicyID  string
	ChunkType core.ChunkType
	Category  string
}

// Match reports whether chunk passes every set filter.
func (f Filters) Match(chunk *core.DocumentChunk) bool {
	if f.PolicyID != "" && chunk.PolicyID != f.PolicyID {
		return false
	}
	if f.ChunkType != "" && chunk.Type != f.ChunkType {
		return false
	}
	if f.Category != "" && chunk.Category != f.Category {
		return false
	}
	return true
}

// SearchOptions controls a vector search.
type SearchOptions struct {
	// TopK is the maximum number of results. Values <= 0 mean DefaultTopK.
	TopK int

	// MinScore drops results with a lower cosine similarity.
	MinScore float64

	Filters Filters
}

// DefaultTopK is used when SearchOptions.TopK is not positive.
const DefaultTopK = 10

// ScoredChunk is one vector search hit. Rank starts at 1.
type ScoredChunk struct {
	Chunk *core.DocumentChunk
	Score float64
	Rank  int
}

// VectorIndex stores embedded chunks and answers cosine-similarity queries.
// Every stored embedding has exactly Dimensions() elements.
// Implementations must be safe for concurrent use.
type VectorIndex interface {
	// Add stores a chunk, replacing any chunk with the same ID.
	// Returns ErrDimensionMismatch if the embedding has the wrong length.
	Add(ctx context.Context, chunk *core.DocumentChunk) error

	// AddMany stores chunks atomically: either all are stored or none.
	AddMany(ctx context.Context, chunks ...*core.DocumentChunk) error

	// Get returns a copy of the chunk, or ErrNotFound.
	Get(ctx context.Context, id string) (*core.DocumentChunk, error)

	// Delete removes a chunk, or returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	// DeleteByPolicy removes every chunk of a policy and returns the count.
	DeleteByPolicy(ctx context.Context, policyID string) (int, error)

	// DeleteByDocument removes every chunk of one source document of a policy.
	DeleteByDocument(ctx context.Context, policyID, documentID string) (int, error)

	// Search ranks chunks by cosine similarity to query. Chunks whose
	// embedding has zero norm never match, and a zero query matches nothing.
	// A policy filter is resolved through a secondary index before scoring.
	Search(ctx context.Context, query []float32, opts SearchOptions) ([]ScoredChunk, error)

	// ListChunks returns copies of a policy's chunks, or of every chunk when
	// policyID is empty, ordered by ID.
	ListChunks(ctx context.Context, policyID string) ([]*core.DocumentChunk, error)

	// Clear removes every chunk.
	Clear(ctx context.Context) error

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Dimensions returns the fixed vector length of the index.
	Dimensions() int

	// Close releases resources. The index must not be used afterwards.
	Close() error
}

// PolicyRepository persists structured policy documents.
// Implementations must be safe for concurrent use.
type PolicyRepository interface {
	// SavePolicy stores doc, replacing any policy with the same ID.
	SavePolicy(ctx context.Context, doc *core.PolicyDocument) error

	// GetPolicy returns the policy, or ErrNotFound.
	GetPolicy(ctx context.Context, id string) (*core.PolicyDocument, error)

	// ListPolicies returns every stored policy ordered by ID.
	ListPolicies(ctx context.Context) ([]*core.PolicyDocument, error)

	// DeletePolicy removes a policy, or returns ErrNotFound.
	DeletePolicy(ctx context.Context, id string) error

	// Close releases resources.
	Close() error
}

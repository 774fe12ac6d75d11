package storage

import (
	"fmt"
	"slices"
	"strings"

	"github.com/poiesic/coverwise/core"
)

// CheckVector returns ErrDimensionMismatch unless len(v) == dims.
func CheckVector(v []float32, dims int) error {
	if len(v) != dims {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(v), dims)
	}
	return nil
}

// CheckChunk validates a chunk for insertion into an index of dims dimensions.
func CheckChunk(chunk *core.DocumentChunk, dims int) error {
	if err := core.ValidateChunk(chunk); err != nil {
		return err
	}
	if err := CheckVector(chunk.Embedding, dims); err != nil {
		return fmt.Errorf("chunk %s: %w", chunk.ID, err)
	}
	return nil
}

// Scorer accumulates candidates for one search. Backends feed it every
// candidate that survived their secondary index and call Results once.
type Scorer struct {
	query []float32
	opts  SearchOptions
	hits  []ScoredChunk
}

// NewScorer prepares a search for query.
func NewScorer(query []float32, opts SearchOptions) *Scorer {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &Scorer{query: query, opts: opts}
}

// Offer scores chunk and keeps it if it passes the filters and the minimum
// score. chunk must not be modified by the caller afterwards.
func (s *Scorer) Offer(chunk *core.DocumentChunk) {
	if !s.opts.Filters.Match(chunk) {
		return
	}
	sim, ok := core.CosineSimilarity(s.query, chunk.Embedding)
	if !ok || sim < s.opts.MinScore {
		return
	}
	s.hits = append(s.hits, ScoredChunk{Chunk: chunk, Score: sim})
}

// Results sorts by descending score (ties by chunk ID), truncates to TopK
// and assigns ranks.
func (s *Scorer) Results() []ScoredChunk {
	slices.SortFunc(s.hits, func(a, b ScoredChunk) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return strings.Compare(a.Chunk.ID, b.Chunk.ID)
	})
	if len(s.hits) > s.opts.TopK {
		s.hits = s.hits[:s.opts.TopK]
	}
	for i := range s.hits {
		s.hits[i].Rank = i + 1
	}
	if s.hits == nil {
		return []ScoredChunk{}
	}
	return s.hits
}

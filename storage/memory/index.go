// Package memory provides in-process implementations of the storage
// interfaces. Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/poiesic/coverwise/core"
	"github.com/poiesic/coverwise/storage"
)

// VectorIndex is a map-backed storage.VectorIndex with a policy secondary
// index.
type VectorIndex struct {
	mu       sync.RWMutex
	dims     int
	chunks   map[string]*core.DocumentChunk
	byPolicy map[string]map[string]struct{}
	closed   bool
}

var _ storage.VectorIndex = (*VectorIndex)(nil)

// NewVectorIndex creates an empty index for vectors of length dims.
func NewVectorIndex(dims int) (storage.VectorIndex, error) {
	return newVectorIndex(dims)
}

func newVectorIndex(dims int) (*VectorIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: %d", storage.ErrInvalidDimensions, dims)
	}
	return &VectorIndex{
		dims:     dims,
		chunks:   map[string]*core.DocumentChunk{},
		byPolicy: map[string]map[string]struct{}{},
	}, nil
}

func (x *VectorIndex) Add(ctx context.Context, chunk *core.DocumentChunk) error {
	return x.AddMany(ctx, chunk)
}

func (x *VectorIndex) AddMany(_ context.Context, chunks ...*core.DocumentChunk) error {
	for _, c := range chunks {
		if err := storage.CheckChunk(c, x.dims); err != nil {
			return err
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return storage.ErrStorageClosed
	}
	for _, c := range chunks {
		x.removeLocked(c.ID)
		stored := c.Clone()
		x.chunks[stored.ID] = stored
		ids, ok := x.byPolicy[stored.PolicyID]
		if !ok {
			ids = map[string]struct{}{}
			x.byPolicy[stored.PolicyID] = ids
		}
		ids[stored.ID] = struct{}{}
	}
	return nil
}

func (x *VectorIndex) Get(_ context.Context, id string) (*core.DocumentChunk, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, storage.ErrStorageClosed
	}
	c, ok := x.chunks[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return c.Clone(), nil
}

func (x *VectorIndex) Delete(_ context.Context, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return storage.ErrStorageClosed
	}
	if !x.removeLocked(id) {
		return storage.ErrNotFound
	}
	return nil
}

func (x *VectorIndex) DeleteByPolicy(_ context.Context, policyID string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return 0, storage.ErrStorageClosed
	}
	ids := slices.Collect(maps.Keys(x.byPolicy[policyID]))
	for _, id := range ids {
		x.removeLocked(id)
	}
	return len(ids), nil
}

func (x *VectorIndex) DeleteByDocument(_ context.Context, policyID, documentID string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return 0, storage.ErrStorageClosed
	}
	var ids []string
	for id := range x.byPolicy[policyID] {
		if x.chunks[id].DocumentID == documentID {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		x.removeLocked(id)
	}
	return len(ids), nil
}

// removeLocked deletes id from both indexes. Callers hold the write lock.
func (x *VectorIndex) removeLocked(id string) bool {
	c, ok := x.chunks[id]
	if !ok {
		return false
	}
	delete(x.chunks, id)
	if ids := x.byPolicy[c.PolicyID]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(x.byPolicy, c.PolicyID)
		}
	}
	return true
}

func (x *VectorIndex) Search(ctx context.Context, query []float32, opts storage.SearchOptions) ([]storage.ScoredChunk, error) {
	if err := storage.CheckVector(query, x.dims); err != nil {
		return nil, err
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, storage.ErrStorageClosed
	}

	scorer := storage.NewScorer(query, opts)
	if opts.Filters.PolicyID != "" {
		for id := range x.byPolicy[opts.Filters.PolicyID] {
			scorer.Offer(x.chunks[id])
		}
	} else {
		for _, c := range x.chunks {
			scorer.Offer(c)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := scorer.Results()
	for i := range results {
		results[i].Chunk = results[i].Chunk.Clone()
	}
	return results, nil
}

func (x *VectorIndex) ListChunks(_ context.Context, policyID string) ([]*core.DocumentChunk, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, storage.ErrStorageClosed
	}

	out := make([]*core.DocumentChunk, 0)
	if policyID != "" {
		for id := range x.byPolicy[policyID] {
			out = append(out, x.chunks[id].Clone())
		}
	} else {
		for _, c := range x.chunks {
			out = append(out, c.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *core.DocumentChunk) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (x *VectorIndex) Clear(_ context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return storage.ErrStorageClosed
	}
	x.chunks = map[string]*core.DocumentChunk{}
	x.byPolicy = map[string]map[string]struct{}{}
	return nil
}

func (x *VectorIndex) Count(_ context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return 0, storage.ErrStorageClosed
	}
	return len(x.chunks), nil
}

func (x *VectorIndex) Dimensions() int {
	return x.dims
}

func (x *VectorIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.closed = true
	x.chunks = nil
	x.byPolicy = nil
	return nil
}

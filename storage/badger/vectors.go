package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/coverwise/core"
	"github.com/poiesic/coverwise/storage"
)

// VectorIndex is a durable storage.VectorIndex. Search scans the stored
// vectors; a policy filter scans only that policy's index keys.
type VectorIndex struct {
	backend     *Backend
	dims        int
	ownsBackend bool
}

var _ storage.VectorIndex = (*VectorIndex)(nil)

// NewVectorIndex opens the vector index in backend. The first open records
// dims; later opens with a different dims fail with
// storage.ErrDimensionMismatch so a model change cannot silently corrupt
// similarity results.
func NewVectorIndex(backend *Backend, dims int) (*VectorIndex, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: %d", storage.ErrInvalidDimensions, dims)
	}
	err := backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(dimensionsKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			if err := tx.Set([]byte(dimensionsKey), storage.MarshalDimensions(dims)); err != nil {
				return err
			}
			return tx.Commit()
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			stored, err := storage.UnmarshalDimensions(val)
			if err != nil {
				return err
			}
			if stored != dims {
				return fmt.Errorf("%w: index was built with %d dimensions, embedder produces %d",
					storage.ErrDimensionMismatch, stored, dims)
			}
			return nil
		})
	}, true)
	if err != nil {
		return nil, err
	}
	return &VectorIndex{backend: backend, dims: dims}, nil
}

// StoredDimensions returns the dimensionality recorded in backend, or 0 if
// no index has been created yet.
func StoredDimensions(backend *Backend) (int, error) {
	dims := 0
	err := backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(dimensionsKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			dims, err = storage.UnmarshalDimensions(val)
			return err
		})
	}, false)
	return dims, err
}

func (x *VectorIndex) Add(ctx context.Context, chunk *core.DocumentChunk) error {
	return x.AddMany(ctx, chunk)
}

func (x *VectorIndex) AddMany(ctx context.Context, chunks ...*core.DocumentChunk) error {
	for _, c := range chunks {
		if err := storage.CheckChunk(c, x.dims); err != nil {
			return err
		}
	}
	if x.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	return x.backend.WithTransaction(ctx, func(_ context.Context, tx *badger.Txn) error {
		for _, c := range chunks {
			if err := x.deleteChunk(tx, c.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			if err := tx.Set(makeChunkKey(c.ID), storage.MarshalChunk(c)); err != nil {
				return err
			}
			if err := tx.Set(makeVectorKey(c.ID), storage.MarshalVector(c.Embedding)); err != nil {
				return err
			}
			if err := tx.Set(makeChunkPolicyKey(c.PolicyID, c.ID), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (x *VectorIndex) Get(_ context.Context, id string) (*core.DocumentChunk, error) {
	if x.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	var chunk *core.DocumentChunk
	err := x.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		chunk, err = readChunk(tx, id)
		return err
	}, false)
	return chunk, err
}

func (x *VectorIndex) Delete(ctx context.Context, id string) error {
	if x.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return x.backend.WithTransaction(ctx, func(_ context.Context, tx *badger.Txn) error {
		return x.deleteChunk(tx, id)
	})
}

func (x *VectorIndex) DeleteByPolicy(ctx context.Context, policyID string) (int, error) {
	return x.deleteWhere(ctx, policyID, func(*core.DocumentChunk) bool { return true })
}

func (x *VectorIndex) DeleteByDocument(ctx context.Context, policyID, documentID string) (int, error) {
	return x.deleteWhere(ctx, policyID, func(c *core.DocumentChunk) bool {
		return c.DocumentID == documentID
	})
}

func (x *VectorIndex) deleteWhere(ctx context.Context, policyID string, match func(*core.DocumentChunk) bool) (int, error) {
	if x.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}
	deleted := 0
	err := x.backend.WithTransaction(ctx, func(_ context.Context, tx *badger.Txn) error {
		ids, err := policyChunkIDs(tx, policyID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			chunk, err := readChunk(tx, id)
			if err != nil {
				return err
			}
			if !match(chunk) {
				continue
			}
			if err := x.deleteChunk(tx, id); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// deleteChunk removes a chunk's record, vector and index key.
func (x *VectorIndex) deleteChunk(tx *badger.Txn, id string) error {
	chunk, err := readChunk(tx, id)
	if err != nil {
		return err
	}
	for _, key := range [][]byte{
		makeChunkKey(id),
		makeVectorKey(id),
		makeChunkPolicyKey(chunk.PolicyID, id),
	} {
		if err := tx.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func (x *VectorIndex) Search(ctx context.Context, query []float32, opts storage.SearchOptions) ([]storage.ScoredChunk, error) {
	if err := storage.CheckVector(query, x.dims); err != nil {
		return nil, err
	}
	if x.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	scorer := storage.NewScorer(query, opts)
	err := x.backend.WithTx(func(tx *badger.Txn) error {
		return x.eachChunk(ctx, tx, opts.Filters.PolicyID, func(c *core.DocumentChunk) {
			scorer.Offer(c)
		})
	}, false)
	if err != nil {
		return nil, err
	}
	return scorer.Results(), nil
}

func (x *VectorIndex) ListChunks(ctx context.Context, policyID string) ([]*core.DocumentChunk, error) {
	if x.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	out := make([]*core.DocumentChunk, 0)
	err := x.backend.WithTx(func(tx *badger.Txn) error {
		return x.eachChunk(ctx, tx, policyID, func(c *core.DocumentChunk) {
			out = append(out, c)
		})
	}, false)
	return out, err
}

// eachChunk visits chunks with their embeddings in ID order. A non-empty
// policyID restricts the scan to that policy's secondary index.
func (x *VectorIndex) eachChunk(ctx context.Context, tx *badger.Txn, policyID string, fn func(*core.DocumentChunk)) error {
	if policyID != "" {
		ids, err := policyChunkIDs(tx, policyID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			chunk, err := readChunk(tx, id)
			if err != nil {
				return err
			}
			fn(chunk)
		}
		return ctx.Err()
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(chunkPrefix)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := string(bytes.TrimPrefix(iter.Item().Key(), []byte(chunkPrefix)))
		var chunk *core.DocumentChunk
		err := iter.Item().Value(func(val []byte) error {
			var err error
			chunk, err = storage.UnmarshalChunk(val)
			return err
		})
		if err != nil {
			return err
		}
		if chunk.Embedding, err = readVector(tx, id); err != nil {
			return err
		}
		fn(chunk)
	}
	return nil
}

func (x *VectorIndex) Clear(_ context.Context) error {
	if x.backend.IsClosed() {
		return storage.ErrStorageClosed
	}
	return x.backend.DropPrefix([]byte(chunkPrefix), []byte(vectorPrefix), []byte(chunkPolicyPrefix))
}

func (x *VectorIndex) Count(_ context.Context) (int, error) {
	if x.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}
	n := 0
	err := x.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			n++
		}
		return nil
	}, false)
	return n, err
}

func (x *VectorIndex) Dimensions() int {
	return x.dims
}

// Close closes the backend only if the index opened it itself.
func (x *VectorIndex) Close() error {
	if x.ownsBackend {
		return x.backend.Close()
	}
	return nil
}

func policyChunkIDs(tx *badger.Txn, policyID string) ([]string, error) {
	prefix := makePartialChunkPolicyKey(policyID)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var ids []string
	for iter.Rewind(); iter.Valid(); iter.Next() {
		ids = append(ids, string(bytes.TrimPrefix(iter.Item().Key(), prefix)))
	}
	return ids, nil
}

func readChunk(tx *badger.Txn, id string) (*core.DocumentChunk, error) {
	item, err := tx.Get(makeChunkKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var chunk *core.DocumentChunk
	err = item.Value(func(val []byte) error {
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	if chunk.Embedding, err = readVector(tx, id); err != nil {
		return nil, err
	}
	return chunk, nil
}

func readVector(tx *badger.Txn, id string) ([]float32, error) {
	item, err := tx.Get(makeVectorKey(id))
	if err != nil {
		return nil, fmt.Errorf("vector for chunk %s: %w", id, err)
	}
	var v []float32
	err = item.Value(func(val []byte) error {
		v, err = storage.UnmarshalVector(val)
		return err
	})
	return v, err
}

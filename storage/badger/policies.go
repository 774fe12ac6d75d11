package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/coverwise/core"
	"github.com/poiesic/coverwise/storage"
)

// PolicyRepository stores policy documents as JSON under policy:<id>.
type PolicyRepository struct {
	backend *Backend
}

var _ storage.PolicyRepository = (*PolicyRepository)(nil)

// NewPolicyRepository creates a PolicyRepository.
func NewPolicyRepository(backend *Backend) *PolicyRepository {
	return &PolicyRepository{backend: backend}
}

func (r *PolicyRepository) SavePolicy(ctx context.Context, doc *core.PolicyDocument) error {
	if err := core.ValidatePolicyDocument(doc); err != nil {
		return err
	}
	value := storage.MarshalPolicy(doc)
	return r.backend.WithTransaction(ctx, func(_ context.Context, tx *badger.Txn) error {
		return tx.Set(makePolicyKey(doc.Meta.ID), value)
	})
}

func (r *PolicyRepository) GetPolicy(_ context.Context, id string) (*core.PolicyDocument, error) {
	var doc *core.PolicyDocument
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makePolicyKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			doc, err = storage.UnmarshalPolicy(val)
			return err
		})
	}, false)
	return doc, err
}

func (r *PolicyRepository) ListPolicies(_ context.Context) ([]*core.PolicyDocument, error) {
	out := make([]*core.PolicyDocument, 0)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(policyPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				doc, err := storage.UnmarshalPolicy(val)
				if err != nil {
					return err
				}
				out = append(out, doc)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	return out, err
}

func (r *PolicyRepository) DeletePolicy(ctx context.Context, id string) error {
	return r.backend.WithTransaction(ctx, func(_ context.Context, tx *badger.Txn) error {
		key := makePolicyKey(id)
		if _, err := tx.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		} else if err != nil {
			return err
		}
		return tx.Delete(key)
	})
}

// Close is a no-op; the backend is closed by its owner.
func (r *PolicyRepository) Close() error {
	return nil
}

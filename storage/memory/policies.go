package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/poiesic/coverwise/core"
	"github.com/poiesic/coverwise/storage"
)

// PolicyRepository keeps policy documents in a map.
type PolicyRepository struct {
	mu       sync.RWMutex
	policies map[string]*core.PolicyDocument
}

var _ storage.PolicyRepository = (*PolicyRepository)(nil)

// NewPolicyRepository creates an empty repository.
func NewPolicyRepository() storage.PolicyRepository {
	return &PolicyRepository{policies: map[string]*core.PolicyDocument{}}
}

func (r *PolicyRepository) SavePolicy(_ context.Context, doc *core.PolicyDocument) error {
	if err := core.ValidatePolicyDocument(doc); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[doc.Meta.ID] = doc.Clone()
	return nil
}

func (r *PolicyRepository) GetPolicy(_ context.Context, id string) (*core.PolicyDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.policies[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return doc.Clone(), nil
}

func (r *PolicyRepository) ListPolicies(_ context.Context) ([]*core.PolicyDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*core.PolicyDocument, 0, len(r.policies))
	for _, doc := range r.policies {
		out = append(out, doc.Clone())
	}
	slices.SortFunc(out, func(a, b *core.PolicyDocument) int {
		return strings.Compare(a.Meta.ID, b.Meta.ID)
	})
	return out, nil
}

func (r *PolicyRepository) DeletePolicy(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.policies[id]; !ok {
		return storage.ErrNotFound
	}
	delete(r.policies, id)
	return nil
}

func (r *PolicyRepository) Close() error {
	return nil
}

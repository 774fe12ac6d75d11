// Package storagetest holds behaviour tests shared by every storage backend.
package storagetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/coverwise/core"
	"github.com/poiesic/coverwise/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Dims is the dimensionality every suite index is created with.
const Dims = 3

// NewIndexFunc returns a fresh empty index of Dims dimensions. The suite
// closes it.
type NewIndexFunc func(t testing.TB) storage.VectorIndex

// Chunk builds a valid chunk for tests.
func Chunk(id, policyID string, embedding ...float32) *core.DocumentChunk {
	return &core.DocumentChunk{
		ID:         id,
		Text:       "text of " + id,
		Type:       core.ChunkTypeRawText,
		PolicyID:   policyID,
		DocumentID: "doc",
		Embedding:  embedding,
	}
}

// RunVectorIndexTests exercises the storage.VectorIndex contract.
func RunVectorIndexTests(t *testing.T, newIndex NewIndexFunc) {
	ctx := context.Background()

	open := func(t testing.TB) storage.VectorIndex {
		x := newIndex(t)
		t.Cleanup(func() { _ = x.Close() })
		return x
	}

	t.Run("add and get", func(t *testing.T) {
		x := open(t)
		c := Chunk("a", "P1", 1, 0, 0)
		c.Metadata = map[string]string{"k": "v"}
		require.NoError(t, x.Add(ctx, c))

		got, err := x.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, c, got)

		got.Embedding[0] = 42
		again, err := x.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, float32(1), again.Embedding[0])

		_, err = x.Get(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.Equal(t, Dims, x.Dimensions())
	})

	t.Run("add replaces same id", func(t *testing.T) {
		x := open(t)
		require.NoError(t, x.Add(ctx, Chunk("a", "P1", 1, 0, 0)))
		require.NoError(t, x.Add(ctx, Chunk("a", "P2", 0, 1, 0)))

		n, err := x.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		p1, err := x.ListChunks(ctx, "P1")
		require.NoError(t, err)
		assert.Empty(t, p1)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		x := open(t)
		err := x.AddMany(ctx, Chunk("a", "P1", 1, 0, 0), Chunk("b", "P1", 1, 0))
		assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

		n, err := x.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "batch must be rejected as a whole")

		_, err = x.Search(ctx, []float32{1, 0}, storage.SearchOptions{})
		assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
	})

	t.Run("invalid chunk", func(t *testing.T) {
		x := open(t)
		c := Chunk("", "P1", 1, 0, 0)
		assert.ErrorIs(t, x.Add(ctx, c), core.ErrInvalidChunk)
	})

	t.Run("search ranks by cosine", func(t *testing.T) {
		x := open(t)
		require.NoError(t, x.AddMany(ctx,
			Chunk("exact", "P1", 1, 0, 0),
			Chunk("close", "P1", 1, 1, 0),
			Chunk("orthogonal", "P1", 0, 1, 0),
			Chunk("opposite", "P1", -1, 0, 0),
			Chunk("zero", "P1", 0, 0, 0),
		))

		results, err := x.Search(ctx, []float32{2, 0, 0}, storage.SearchOptions{TopK: 10, MinScore: -1})
		require.NoError(t, err)

		ids := make([]string, len(results))
		for i, r := range results {
			ids[i] = r.Chunk.ID
			assert.Equal(t, i+1, r.Rank)
		}
		assert.Equal(t, []string{"exact", "close", "orthogonal", "opposite"}, ids, "zero-norm chunk must be excluded")
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
		assert.InDelta(t, -1.0, results[3].Score, 1e-6)
	})

	t.Run("search min score and top k", func(t *testing.T) {
		x := open(t)
		require.NoError(t, x.AddMany(ctx,
			Chunk("a", "P1", 1, 0, 0),
			Chunk("b", "P1", 1, 1, 0),
			Chunk("c", "P1", 0, 1, 0),
		))

		results, err := x.Search(ctx, []float32{1, 0, 0}, storage.SearchOptions{TopK: 5, MinScore: 0.5})
		require.NoError(t, err)
		assert.Len(t, results, 2)

		results, err = x.Search(ctx, []float32{1, 0, 0}, storage.SearchOptions{TopK: 1})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "a", results[0].Chunk.ID)
		assert.Equal(t, 1, results[0].Rank)
	})

	t.Run("zero query matches nothing", func(t *testing.T) {
		x := open(t)
		require.NoError(t, x.Add(ctx, Chunk("a", "P1", 1, 0, 0)))
		results, err := x.Search(ctx, []float32{0, 0, 0}, storage.SearchOptions{MinScore: -1})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("filters", func(t *testing.T) {
		x := open(t)
		a := Chunk("a", "P1", 1, 0, 0)
		a.Type = core.ChunkTypeExclusion
		a.Category = "Engine"
		b := Chunk("b", "P1", 1, 0, 0)
		b.Type = core.ChunkTypeInclusion
		b.Category = "Engine"
		c := Chunk("c", "P2", 1, 0, 0)
		c.Type = core.ChunkTypeExclusion
		c.Category = "Roadside"
		require.NoError(t, x.AddMany(ctx, a, b, c))

		search := func(f storage.Filters) []string {
			results, err := x.Search(ctx, []float32{1, 0, 0}, storage.SearchOptions{Filters: f})
			require.NoError(t, err)
			var ids []string
			for _, r := range results {
				ids = append(ids, r.Chunk.ID)
			}
			return ids
		}

		assert.Equal(t, []string{"a", "b"}, search(storage.Filters{PolicyID: "P1"}))
		assert.Equal(t, []string{"a", "c"}, search(storage.Filters{ChunkType: core.ChunkTypeExclusion}))
		assert.Equal(t, []string{"c"}, search(storage.Filters{Category: "Roadside"}))
		assert.Equal(t, []string{"a"}, search(storage.Filters{PolicyID: "P1", ChunkType: core.ChunkTypeExclusion}))
		assert.Empty(t, search(storage.Filters{PolicyID: "P3"}))
	})

	t.Run("delete", func(t *testing.T) {
		x := open(t)
		require.NoError(t, x.AddMany(ctx,
			Chunk("a", "P1", 1, 0, 0),
			Chunk("b", "P1", 0, 1, 0),
			Chunk("c", "P2", 0, 0, 1),
		))

		require.NoError(t, x.Delete(ctx, "a"))
		assert.ErrorIs(t, x.Delete(ctx, "a"), storage.ErrNotFound)

		n, err := x.DeleteByPolicy(ctx, "P1")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = x.DeleteByPolicy(ctx, "P1")
		require.NoError(t, err)
		assert.Zero(t, n)

		count, err := x.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		results, err := x.Search(ctx, []float32{0, 1, 0}, storage.SearchOptions{Filters: storage.Filters{PolicyID: "P1"}, MinScore: -1})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("delete by document", func(t *testing.T) {
		x := open(t)
		a := Chunk("a", "P1", 1, 0, 0)
		b := Chunk("b", "P1", 1, 0, 0)
		b.DocumentID = "other"
		c := Chunk("c", "P2", 1, 0, 0)
		require.NoError(t, x.AddMany(ctx, a, b, c))

		n, err := x.DeleteByDocument(ctx, "P1", "doc")
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		left, err := x.ListChunks(ctx, "")
		require.NoError(t, err)
		require.Len(t, left, 2)
		assert.Equal(t, "b", left[0].ID)
		assert.Equal(t, "c", left[1].ID)
	})

	t.Run("list and clear", func(t *testing.T) {
		x := open(t)
		require.NoError(t, x.AddMany(ctx,
			Chunk("b", "P1", 1, 0, 0),
			Chunk("a", "P1", 0, 1, 0),
			Chunk("c", "P2", 0, 0, 1),
		))

		p1, err := x.ListChunks(ctx, "P1")
		require.NoError(t, err)
		require.Len(t, p1, 2)
		assert.Equal(t, "a", p1[0].ID)
		assert.Equal(t, []float32{0, 1, 0}, p1[0].Embedding)

		require.NoError(t, x.Clear(ctx))
		n, err := x.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("policy isolation", func(t *testing.T) {
		rapid.Check(t, func(rt *rapid.T) {
			x := newIndex(t)
			defer x.Close()

			policies := []string{"P1", "P2", "P3"}
			n := rapid.IntRange(1, 25).Draw(rt, "chunks")
			chunks := make([]*core.DocumentChunk, n)
			for i := range chunks {
				vec := rapid.SliceOfN(rapid.Float32Range(-1, 1), Dims, Dims).Draw(rt, fmt.Sprintf("vec%d", i))
				chunks[i] = Chunk(fmt.Sprintf("c%d", i), rapid.SampledFrom(policies).Draw(rt, fmt.Sprintf("policy%d", i)), vec...)
			}
			if err := x.AddMany(ctx, chunks...); err != nil {
				rt.Fatal(err)
			}

			target := rapid.SampledFrom(policies).Draw(rt, "target")
			query := rapid.SliceOfN(rapid.Float32Range(-1, 1), Dims, Dims).Draw(rt, "query")
			results, err := x.Search(ctx, query, storage.SearchOptions{TopK: n, MinScore: -1, Filters: storage.Filters{PolicyID: target}})
			if err != nil {
				rt.Fatal(err)
			}
			for _, r := range results {
				if r.Chunk.PolicyID != target {
					rt.Fatalf("chunk %s of policy %s returned for %s", r.Chunk.ID, r.Chunk.PolicyID, target)
				}
			}
		})
	})
}

// Policy builds a minimal valid policy.
func Policy(id string) *core.PolicyDocument {
	return &core.PolicyDocument{
		Meta: core.PolicyMeta{ID: id, Provider: "Acme", Status: core.PolicyStatusActive},
		Coverage: []core.CoverageCategory{
			{Name: "Engine", ItemsIncluded: []string{"Pistons"}, ItemsExcluded: []string{"Turbo"}},
		},
	}
}

// RunPolicyRepositoryTests exercises the storage.PolicyRepository contract.
func RunPolicyRepositoryTests(t *testing.T, repo storage.PolicyRepository) {
	ctx := context.Background()

	require.NoError(t, repo.SavePolicy(ctx, Policy("P2")))
	require.NoError(t, repo.SavePolicy(ctx, Policy("P1")))

	got, err := repo.GetPolicy(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, Policy("P1"), got)

	updated := Policy("P1")
	updated.Meta.Status = core.PolicyStatusSuspended
	require.NoError(t, repo.SavePolicy(ctx, updated))
	got, err = repo.GetPolicy(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, core.PolicyStatusSuspended, got.Meta.Status)

	all, err := repo.ListPolicies(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "P1", all[0].Meta.ID)
	assert.Equal(t, "P2", all[1].Meta.ID)

	_, err = repo.GetPolicy(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, repo.SavePolicy(ctx, &core.PolicyDocument{}), core.ErrInvalidPolicy)

	require.NoError(t, repo.DeletePolicy(ctx, "P2"))
	assert.ErrorIs(t, repo.DeletePolicy(ctx, "P2"), storage.ErrNotFound)
}

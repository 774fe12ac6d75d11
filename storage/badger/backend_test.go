package badger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/coverwise/storage"
	"github.com/poiesic/coverwise/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(tmpDir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
	assert.DirExists(t, tmpDir)
}

func TestOpenBackend_NotADirectory(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(tmpFile, []byte("x"), 0644))

	_, err := OpenBackend(tmpFile, false)
	assert.ErrorContains(t, err, "not a directory")
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())
	assert.NoError(t, backend.Close(), "second close is a no-op")
}

func TestVectorIndex(t *testing.T) {
	storagetest.RunVectorIndexTests(t, func(t testing.TB) storage.VectorIndex {
		x, err := NewMemoryVectorIndex(storagetest.Dims)
		require.NoError(t, err)
		return x
	})
}

func TestPolicyRepository(t *testing.T) {
	_, repo, backend, err := NewMemoryStores(storagetest.Dims)
	require.NoError(t, err)
	defer backend.Close()

	storagetest.RunPolicyRepositoryTests(t, repo)
}

func TestVectorIndexDimensionsPersist(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	x, err := NewVectorIndex(backend, 3)
	require.NoError(t, err)
	require.NoError(t, x.Add(ctx, storagetest.Chunk("a", "P1", 1, 0, 0)))
	require.NoError(t, backend.Close())

	backend, err = OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()

	dims, err := StoredDimensions(backend)
	require.NoError(t, err)
	assert.Equal(t, 3, dims)

	_, err = NewVectorIndex(backend, 4)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	x, err = NewVectorIndex(backend, 3)
	require.NoError(t, err)
	got, err := x.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, got.Embedding)
}

func TestStoredDimensionsEmpty(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	dims, err := StoredDimensions(backend)
	require.NoError(t, err)
	assert.Zero(t, dims)

	_, err = NewVectorIndex(backend, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidDimensions)
}

func TestPolicyPrefixIsolation(t *testing.T) {
	x, err := NewMemoryVectorIndex(storagetest.Dims)
	require.NoError(t, err)
	defer x.Close()
	ctx := context.Background()

	require.NoError(t, x.AddMany(ctx,
		storagetest.Chunk("a", "P1", 1, 0, 0),
		storagetest.Chunk("b", "P10", 1, 0, 0),
	))

	chunks, err := x.ListChunks(ctx, "P1")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a", chunks[0].ID)
}

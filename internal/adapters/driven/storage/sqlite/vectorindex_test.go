package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/indextest"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

func TestVectorIndex_Conformance(t *testing.T) {
	indextest.Run(t, func(t *testing.T) driven.VectorIndex {
		idx, err := OpenVectorIndex(t.TempDir(), "documents")
		require.NoError(t, err)
		return idx
	})
}

func TestVectorIndex_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := OpenVectorIndex(dir, "documents")
	require.NoError(t, err)
	require.NoError(t, idx.EnsureCollection(ctx, 2, domain.MetricCosine))
	require.NoError(t, idx.Upsert(ctx, []domain.Chunk{indextest.Chunk("doc", 0, "a.md", 1, 0)}))
	require.NoError(t, idx.Close())

	reopened, err := OpenVectorIndex(dir, "documents")
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = reopened.EnsureCollection(ctx, 3, domain.MetricCosine)
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestVectorIndex_CollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	a := store.VectorIndex("a")
	b := store.VectorIndex("b")
	require.NoError(t, a.EnsureCollection(ctx, 2, domain.MetricCosine))
	require.NoError(t, b.EnsureCollection(ctx, 3, domain.MetricCosine))

	require.NoError(t, a.Upsert(ctx, []domain.Chunk{indextest.Chunk("doc", 0, "s", 1, 0)}))

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Closing a borrowed index leaves the store usable.
	require.NoError(t, a.Close())
	n, err = a.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestVectorIndex_UpsertBeforeEnsure(t *testing.T) {
	idx := setupTestStore(t).VectorIndex("documents")
	err := idx.Upsert(context.Background(), []domain.Chunk{indextest.Chunk("doc", 0, "s", 1)})
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestVectorIndex_ClosedStoreIsUnavailable(t *testing.T) {
	idx, err := OpenVectorIndex(t.TempDir(), "documents")
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.Count(context.Background())
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	assert.ErrorIs(t, idx.Ping(context.Background()), domain.ErrIndexUnavailable)
}

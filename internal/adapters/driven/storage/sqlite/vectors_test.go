package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kb/internal/adapters/driven/storage/storetest"
	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

func TestVectorIndex_Contract(t *testing.T) {
	storetest.RunVectorIndex(t, func(t *testing.T) driven.VectorIndex {
		return newTestStore(t).VectorIndex(storetest.VectorDims)
	})
}

func TestVectorIndex_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.VectorIndex(2).Upsert(ctx,
		driven.VectorEntry{ChunkID: "a", DocumentID: "d", Permission: domain.PermissionPublic, Embedding: []float32{1, 0}},
		driven.VectorEntry{ChunkID: "b", DocumentID: "d", Permission: domain.PermissionPublic, Embedding: []float32{1, 0}},
	))
	require.NoError(t, store.Close())

	store, err = NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	hits, err := store.VectorIndex(2).Search(ctx, []float32{1, 0}, 5,
		driven.VectorFilter{Permissions: []domain.PermissionLevel{domain.PermissionPublic}})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-6)
}

func TestVectorIndex_ClosedDatabase(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	index := store.VectorIndex(2)
	require.NoError(t, store.Close())

	_, err = index.Search(context.Background(), []float32{1, 0}, 1,
		driven.VectorFilter{Permissions: domain.AllPermissionLevels()})
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	assert.True(t, domain.IsRetryable(err))
}

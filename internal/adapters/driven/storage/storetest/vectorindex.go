package storetest

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

// VectorDims is the dimensionality every contract test uses.
const VectorDims = 4

// NewVectorIndex returns an empty index of VectorDims dimensions.
type NewVectorIndex func(t *testing.T) driven.VectorIndex

func entry(id, doc string, perm domain.PermissionLevel, vec ...float32) driven.VectorEntry {
	return driven.VectorEntry{ChunkID: id, DocumentID: doc, Permission: perm, Embedding: vec}
}

func hitIDs(hits []driven.VectorHit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	return ids
}

var everyone = driven.VectorFilter{Permissions: domain.AllPermissionLevels()}

// RunVectorIndex exercises the VectorIndex contract.
//
//nolint:funlen // One subtest per contract clause.
func RunVectorIndex(t *testing.T, newIndex NewVectorIndex) {
	ctx := context.Background()

	t.Run("RanksByCosineSimilarity", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx,
			entry("far", "d1", domain.PermissionPublic, 0, 1, 0, 0),
			entry("near", "d1", domain.PermissionPublic, 1, 0.1, 0, 0),
			entry("mid", "d2", domain.PermissionPublic, 1, 1, 0, 0),
		))

		hits, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 3, everyone)
		require.NoError(t, err)
		assert.Equal(t, []string{"near", "mid", "far"}, hitIDs(hits))
		assert.InDelta(t, 0.995, hits[0].Similarity, 0.001)
		assert.InDelta(t, 0.0, hits[2].Similarity, 1e-6)
		assert.Equal(t, "d1", hits[0].DocumentID)

		n, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, VectorDims, idx.Dimensions())
	})

	t.Run("TiesKeepInsertionOrder", func(t *testing.T) {
		idx := newIndex(t)
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, idx.Upsert(ctx, entry(id, "d", domain.PermissionPublic, 1, 0, 0, 0)))
		}
		// Re-upserting keeps the original position.
		require.NoError(t, idx.Upsert(ctx, entry("a", "d", domain.PermissionPublic, 1, 0, 0, 0)))

		hits, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 3, everyone)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, hitIDs(hits))
	})

	t.Run("FilterAppliesBeforeTopK", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx,
			entry("secret1", "d1", domain.PermissionPrivate, 1, 0, 0, 0),
			entry("secret2", "d1", domain.PermissionPrivate, 1, 0.01, 0, 0),
			entry("open", "d2", domain.PermissionPublic, 0.5, 0.5, 0, 0),
		))

		hits, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 1,
			driven.VectorFilter{Permissions: []domain.PermissionLevel{domain.PermissionPublic}})
		require.NoError(t, err)
		assert.Equal(t, []string{"open"}, hitIDs(hits))
		assert.Equal(t, domain.PermissionPublic, hits[0].Permission)
	})

	t.Run("EmptyPermissionsMatchNothing", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, entry("a", "d", domain.PermissionPublic, 1, 0, 0, 0)))
		hits, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 5, driven.VectorFilter{})
		require.NoError(t, err)
		assert.Empty(t, hits)

		hits, err = idx.Search(ctx, []float32{1, 0, 0, 0}, 0, everyone)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("DocumentFilter", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx,
			entry("a", "d1", domain.PermissionPublic, 1, 0, 0, 0),
			entry("b", "d2", domain.PermissionPublic, 1, 0, 0, 0),
		))
		filter := everyone
		filter.DocumentIDs = []string{"d2"}
		hits, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 5, filter)
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, hitIDs(hits))
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		idx := newIndex(t)
		err := idx.Upsert(ctx,
			entry("ok", "d", domain.PermissionPublic, 1, 0, 0, 0),
			entry("bad", "d", domain.PermissionPublic, 1, 0),
		)
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

		n, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "a failed upsert writes nothing")

		_, err = idx.Search(ctx, []float32{1, 0}, 1, everyone)
		assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	})

	t.Run("Delete", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx,
			entry("a", "d1", domain.PermissionPublic, 1, 0, 0, 0),
			entry("b", "d1", domain.PermissionPublic, 0, 1, 0, 0),
			entry("c", "d2", domain.PermissionPublic, 0, 0, 1, 0),
		))

		require.NoError(t, idx.Delete(ctx, "c"))
		require.NoError(t, idx.Delete(ctx, "unknown"))

		removed, err := idx.DeleteByDocument(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		hits, err := idx.Search(ctx, []float32{1, 1, 1, 0}, 10, everyone)
		require.NoError(t, err)
		assert.Empty(t, hits, "deleted documents leave no hits")

		removed, err = idx.DeleteByDocument(ctx, "d1")
		require.NoError(t, err)
		assert.Zero(t, removed)
	})

	t.Run("PermissionUpdateByUpsert", func(t *testing.T) {
		idx := newIndex(t)
		require.NoError(t, idx.Upsert(ctx, entry("a", "d", domain.PermissionPrivate, 1, 0, 0, 0)))
		require.NoError(t, idx.Upsert(ctx, entry("a", "d", domain.PermissionPublic, 1, 0, 0, 0)))

		hits, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 5,
			driven.VectorFilter{Permissions: []domain.PermissionLevel{domain.PermissionPublic}})
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, hitIDs(hits))
	})

	t.Run("RarePermissionFillsTopK", func(t *testing.T) {
		idx := newIndex(t)
		entries := make([]driven.VectorEntry, 0, 200)
		for i := 0; i < 200; i++ {
			if i%50 == 0 {
				entries = append(entries, entry(fmt.Sprintf("pub%03d", i), "open", domain.PermissionPublic,
					0, 1, float32(i)/1000, 0))
				continue
			}
			entries = append(entries, entry(fmt.Sprintf("priv%03d", i), "closed", domain.PermissionPrivate,
				1, float32(i)/1000, 0, 0))
		}
		require.NoError(t, idx.Upsert(ctx, entries...))

		public := driven.VectorFilter{Permissions: []domain.PermissionLevel{domain.PermissionPublic}}
		hits, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 3, public)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		for _, h := range hits {
			assert.Equal(t, domain.PermissionPublic, h.Permission)
		}

		hits, err = idx.Search(ctx, []float32{1, 0, 0, 0}, 10, public)
		require.NoError(t, err)
		assert.Equal(t, []string{"pub000", "pub050", "pub100", "pub150"}, hitIDs(hits))

		hits, err = idx.Search(ctx, []float32{1, 0, 0, 0}, 2,
			driven.VectorFilter{Permissions: domain.AllPermissionLevels(), DocumentIDs: []string{"open"}})
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})

	t.Run("RandomisedPermissionFilter", func(t *testing.T) {
		idx := newIndex(t)
		rng := rand.New(rand.NewSource(7)) //nolint:gosec // Deterministic test data.
		levels := domain.AllPermissionLevels()

		entries := make([]driven.VectorEntry, 0, 120)
		for i := 0; i < 120; i++ {
			vec := make([]float32, VectorDims)
			for j := range vec {
				vec[j] = rng.Float32()*2 - 1
			}
			entries = append(entries, entry(fmt.Sprintf("c%03d", i), fmt.Sprintf("d%d", i%10),
				levels[rng.Intn(len(levels))], vec...))
		}
		require.NoError(t, idx.Upsert(ctx, entries...))

		for round := 0; round < 20; round++ {
			var allowed []domain.PermissionLevel
			for _, l := range levels {
				if rng.Intn(2) == 0 {
					allowed = append(allowed, l)
				}
			}
			query := []float32{rng.Float32(), rng.Float32(), rng.Float32(), rng.Float32()}
			hits, err := idx.Search(ctx, query, 15, driven.VectorFilter{Permissions: allowed})
			require.NoError(t, err)

			for _, h := range hits {
				assert.Contains(t, allowed, h.Permission)
			}
			for i := 1; i < len(hits); i++ {
				assert.GreaterOrEqual(t, hits[i-1].Similarity, hits[i].Similarity)
			}
		}
	})
}

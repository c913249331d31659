package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

// Ensure VectorIndex implements the interface.
var _ driven.VectorIndex = (*VectorIndex)(nil)

// VectorIndex is a brute-force in-memory implementation of driven.VectorIndex.
// Every search scans all entries, which is fine for small collections and tests.
type VectorIndex struct {
	mu         sync.RWMutex
	dimensions int
	entries    map[string]indexedVector
	nextSeq    uint64
}

type indexedVector struct {
	entry driven.VectorEntry
	seq   uint64
}

// NewVectorIndex creates an empty index for vectors of the given size.
func NewVectorIndex(dimensions int) *VectorIndex {
	return &VectorIndex{
		dimensions: dimensions,
		entries:    make(map[string]indexedVector),
	}
}

// Upsert inserts or replaces entries atomically.
func (v *VectorIndex) Upsert(_ context.Context, entries ...driven.VectorEntry) error {
	for _, e := range entries {
		if e.ChunkID == "" {
			return fmt.Errorf("%w: vector entry without chunk id", domain.ErrInvalidInput)
		}
		if len(e.Embedding) != v.dimensions {
			return domain.NewDimensionMismatch(len(e.Embedding), v.dimensions)
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for _, e := range entries {
		e.Embedding = append([]float32(nil), e.Embedding...)
		existing, ok := v.entries[e.ChunkID]
		if ok {
			v.entries[e.ChunkID] = indexedVector{entry: e, seq: existing.seq}
			continue
		}
		v.nextSeq++
		v.entries[e.ChunkID] = indexedVector{entry: e, seq: v.nextSeq}
	}
	return nil
}

// Delete removes a vector. Unknown IDs are ignored.
func (v *VectorIndex) Delete(_ context.Context, chunkID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.entries, chunkID)
	return nil
}

// DeleteByDocument removes every vector of a document.
func (v *VectorIndex) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	removed := 0
	for id, iv := range v.entries {
		if iv.entry.DocumentID == documentID {
			delete(v.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Search returns the k most similar entries that match the filter.
func (v *VectorIndex) Search(
	_ context.Context, query []float32, k int, filter driven.VectorFilter,
) ([]driven.VectorHit, error) {
	if len(query) != v.dimensions {
		return nil, domain.NewDimensionMismatch(len(query), v.dimensions)
	}
	if k <= 0 {
		return []driven.VectorHit{}, nil
	}

	v.mu.RLock()
	type scored struct {
		hit driven.VectorHit
		seq uint64
	}
	candidates := make([]scored, 0, len(v.entries))
	for _, iv := range v.entries {
		if !filter.Matches(iv.entry) {
			continue
		}
		candidates = append(candidates, scored{
			hit: driven.VectorHit{
				ChunkID:    iv.entry.ChunkID,
				DocumentID: iv.entry.DocumentID,
				Position:   iv.entry.Position,
				Permission: iv.entry.Permission,
				Similarity: CosineSimilarity(query, iv.entry.Embedding),
			},
			seq: iv.seq,
		})
	}
	v.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].hit.Similarity != candidates[j].hit.Similarity {
			return candidates[i].hit.Similarity > candidates[j].hit.Similarity
		}
		return candidates[i].seq < candidates[j].seq
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	hits := make([]driven.VectorHit, len(candidates))
	for i, c := range candidates {
		hits[i] = c.hit
	}
	return hits, nil
}

// Count returns the number of stored vectors.
func (v *VectorIndex) Count(_ context.Context) (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.entries), nil
}

// Dimensions returns the configured vector size.
func (v *VectorIndex) Dimensions() int {
	return v.dimensions
}

// Close is a no-op.
func (v *VectorIndex) Close() error {
	return nil
}

// CosineSimilarity returns the cosine of the angle between a and b.
// A zero vector has similarity 0 with everything.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

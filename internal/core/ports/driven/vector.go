package driven

import (
	"context"

	"github.com/custodia-labs/kb/internal/core/domain"
)

// VectorIndex stores chunk vectors with metadata and serves
// nearest-neighbour queries restricted by a metadata filter.
//
// Implementations must rank by cosine similarity in descending order,
// break ties by insertion order (earliest first) and apply the filter
// before ranking so that top-k is never shortened by filtering.
// Backend failures are reported wrapped in domain.ErrIndexUnavailable.
type VectorIndex interface {
	// Upsert inserts or replaces entries. A call is atomic: either every
	// entry is visible afterwards or none is. A replaced entry keeps its
	// original insertion order.
	Upsert(ctx context.Context, entries ...VectorEntry) error

	// Delete removes a vector from the index. Unknown IDs are ignored.
	Delete(ctx context.Context, chunkID string) error

	// DeleteByDocument removes every vector of a document and returns how many were removed.
	DeleteByDocument(ctx context.Context, documentID string) (int, error)

	// Search finds the k nearest neighbours to the query vector among entries matching filter.
	Search(ctx context.Context, query []float32, k int, filter VectorFilter) ([]VectorHit, error)

	// Count returns the number of stored vectors.
	Count(ctx context.Context) (int, error)

	// Dimensions returns the configured vector size.
	Dimensions() int

	// Close releases resources.
	Close() error
}

// VectorEntry is one chunk vector with its filterable metadata.
type VectorEntry struct {
	// ChunkID is the primary key.
	ChunkID string

	// DocumentID is the owning document.
	DocumentID string

	// Position is the chunk ordinal within the document.
	Position int

	// Permission is the chunk's permission snapshot.
	Permission domain.PermissionLevel

	// Embedding is the vector.
	Embedding []float32
}

// VectorFilter restricts a search. An empty Permissions set matches nothing.
type VectorFilter struct {
	// Permissions is the set of levels a hit may carry.
	Permissions []domain.PermissionLevel

	// DocumentIDs optionally restricts hits to these documents.
	DocumentIDs []string
}

// Matches reports whether an entry satisfies the filter.
func (f VectorFilter) Matches(e VectorEntry) bool {
	allowed := false
	for _, p := range f.Permissions {
		if p == e.Permission {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}
	if len(f.DocumentIDs) == 0 {
		return true
	}
	for _, id := range f.DocumentIDs {
		if id == e.DocumentID {
			return true
		}
	}
	return false
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// DocumentID is the owning document.
	DocumentID string

	// Position is the chunk ordinal within the document.
	Position int

	// Permission is the stored permission snapshot.
	Permission domain.PermissionLevel

	// Similarity is the cosine similarity score.
	Similarity float64
}

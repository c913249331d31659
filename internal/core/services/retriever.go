package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
	"github.com/custodia-labs/kb/internal/logger"
)

// Retrieval defaults.
const (
	DefaultTopK              = 10
	DefaultRerankFactor      = 4
	DefaultDedupOverlapRatio = 0.5

	// similarityOverfetch pads the candidate list so dedup and deleted
	// chunks do not leave a short result.
	similarityOverfetch = 2
)

// Retriever finds the chunks most relevant to a query within a
// permission scope.
type Retriever struct {
	embedder     *EmbeddingClient
	index        driven.VectorIndex
	docStore     driven.DocumentStore
	reranker     driven.Reranker
	rerankFactor int
	dedupRatio   float64
	defaultTopK  int
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithReranker enables reranking when a request asks for it.
func WithReranker(r driven.Reranker) RetrieverOption {
	return func(rt *Retriever) {
		rt.reranker = r
	}
}

// WithRerankFactor sets how many candidates per requested result are
// fetched before reranking.
func WithRerankFactor(n int) RetrieverOption {
	return func(rt *Retriever) {
		if n > 0 {
			rt.rerankFactor = n
		}
	}
}

// WithDedupOverlapRatio sets the span overlap above which two results
// from one document count as duplicates.
func WithDedupOverlapRatio(r float64) RetrieverOption {
	return func(rt *Retriever) {
		if r > 0 && r <= 1 {
			rt.dedupRatio = r
		}
	}
}

// WithDefaultTopK sets the result count used when a request leaves it unset.
func WithDefaultTopK(k int) RetrieverOption {
	return func(rt *Retriever) {
		if k > 0 {
			rt.defaultTopK = k
		}
	}
}

// NewRetriever creates a retriever.
func NewRetriever(
	embedder *EmbeddingClient,
	index driven.VectorIndex,
	docStore driven.DocumentStore,
	opts ...RetrieverOption,
) *Retriever {
	r := &Retriever{
		embedder:     embedder,
		index:        index,
		docStore:     docStore,
		rerankFactor: DefaultRerankFactor,
		dedupRatio:   DefaultDedupOverlapRatio,
		defaultTopK:  DefaultTopK,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns at most TopK sources ordered by rank. An empty result
// is not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts domain.RetrieveOptions) ([]domain.Source, error) {
	logger.Section("Retrieval")

	if err := opts.Scope.Validate(); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = r.defaultTopK
	}
	rerank := opts.UseRerank && r.reranker != nil
	candidates := topK * similarityOverfetch
	if rerank {
		candidates = topK * max(r.rerankFactor, similarityOverfetch)
	}
	logger.Debug("Query: %q, top_k=%d, candidates=%d, threshold=%.3f, rerank=%t",
		query, topK, candidates, opts.ScoreThreshold, rerank)

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.index.Search(ctx, vector, candidates, driven.VectorFilter{
		Permissions: opts.Scope,
		DocumentIDs: opts.DocumentIDs,
	})
	if err != nil {
		if errors.Is(err, domain.ErrIndexUnavailable) || errors.Is(err, domain.ErrDimensionMismatch) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
	}
	logger.Debug("Index returned %d hits", len(hits))

	kept := hits[:0:0]
	for _, hit := range hits {
		if hit.Similarity >= opts.ScoreThreshold {
			kept = append(kept, hit)
		}
	}

	sources, err := r.hydrate(ctx, kept, opts.Scope)
	if err != nil {
		return nil, err
	}

	if rerank && len(sources) > 0 {
		r.rerank(ctx, query, sources)
	}

	sources = dedupSources(sources, r.dedupRatio)
	if len(sources) > topK {
		sources = sources[:topK]
	}
	logger.Info("Retrieved %d sources", len(sources))
	return sources, nil
}

// hydrate loads chunk text and document titles. Chunks deleted since
// indexing are skipped, as are chunks whose index entry, stored chunk or
// document carries a level outside scope.
func (r *Retriever) hydrate(ctx context.Context, hits []driven.VectorHit, scope domain.Scope) ([]domain.Source, error) {
	docs := make(map[string]*domain.Document)
	sources := make([]domain.Source, 0, len(hits))

	for _, hit := range hits {
		chunk, err := r.docStore.GetChunk(ctx, hit.ChunkID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("get chunk %s: %w", hit.ChunkID, err)
		}
		if !scope.Contains(hit.Permission) || !scope.Contains(chunk.Permission) {
			continue
		}

		doc, ok := docs[chunk.DocumentID]
		if !ok {
			doc, err = r.docStore.GetDocument(ctx, chunk.DocumentID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("get document %s: %w", chunk.DocumentID, err)
			}
			docs[chunk.DocumentID] = doc
		}
		if doc == nil || !scope.Contains(doc.Permission) {
			continue
		}

		sources = append(sources, domain.Source{
			DocumentID:    chunk.DocumentID,
			ChunkID:       chunk.ID,
			DocumentTitle: doc.Title,
			Position:      chunk.Position,
			Start:         chunk.Start,
			End:           chunk.End,
			Content:       chunk.Content,
			Score:         hit.Similarity,
		})
	}
	return sources, nil
}

// rerank rescores sources in place. On failure the similarity order is kept.
func (r *Retriever) rerank(ctx context.Context, query string, sources []domain.Source) {
	texts := make([]string, len(sources))
	for i := range sources {
		texts[i] = sources[i].Content
	}

	scores, err := r.reranker.Rerank(ctx, query, texts)
	if err == nil && len(scores) != len(sources) {
		err = fmt.Errorf("%w: got %d scores for %d passages", domain.ErrMalformedResponse, len(scores), len(sources))
	}
	if err != nil {
		logger.Warn("Reranker %s failed, keeping similarity order: %v", r.reranker.Name(), err)
		return
	}

	for i := range sources {
		score := scores[i]
		sources[i].RerankScore = &score
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].RankScore() > sources[j].RankScore()
	})
}

// dedupSources drops a source when a higher-ranked source from the same
// document covers more than ratio of the shorter span.
func dedupSources(sources []domain.Source, ratio float64) []domain.Source {
	out := make([]domain.Source, 0, len(sources))
	for _, s := range sources {
		duplicate := false
		for _, k := range out {
			if k.DocumentID == s.DocumentID && spanOverlap(k, s) > ratio {
				duplicate = true
				break
			}
		}
		if !duplicate {
			out = append(out, s)
		}
	}
	return out
}

// spanOverlap is the shared length of two spans over the shorter span.
func spanOverlap(a, b domain.Source) float64 {
	shared := min(a.End, b.End) - max(a.Start, b.Start)
	if shared <= 0 {
		return 0
	}
	shorter := min(a.End-a.Start, b.End-b.Start)
	if shorter <= 0 {
		return 0
	}
	return float64(shared) / float64(shorter)
}

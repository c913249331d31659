package driven

import "context"

// Reranker re-scores candidate passages against a query with a
// more expensive, more accurate signal than vector similarity.
type Reranker interface {
	// Rerank returns one score per document, in input order.
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)

	// Name identifies the reranker in logs.
	Name() string
}

// TokenCounter measures prompt length in model tokens.
type TokenCounter interface {
	// Count returns the number of tokens in text.
	Count(text string) int
}

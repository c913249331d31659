package driven

import "context"

// EmbeddingService maps text into the vector space searched by VectorIndex.
// Every vector it returns has Dimensions() components, and the index must be
// opened with the same size.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	Dimensions() int
	ModelName() string

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}

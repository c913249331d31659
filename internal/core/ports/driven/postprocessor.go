package driven

import (
	"context"

	"github.com/custodia-labs/kb/internal/core/domain"
)

// PostProcessor is a single chunking or enrichment step. Stages run in
// order: the chunker is handed nil and produces the initial chunks, and
// each later stage receives the previous stage's output.
type PostProcessor interface {
	Name() string
	Process(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// PostProcessorPipeline runs the configured stages over a document.
type PostProcessorPipeline interface {
	Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error)
}

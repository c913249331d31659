// Package permission stamps a document's access level onto its chunks.
package permission

import (
	"context"
	"fmt"

	"github.com/custodia-labs/kb/internal/core/domain"
)

// Processor copies the document's permission level and title into every chunk.
// The copy is a snapshot: later permission changes must re-sync chunks explicitly.
type Processor struct{}

// New creates a permission processor.
func New() *Processor {
	return &Processor{}
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "permission"
}

// Process stamps the chunks. Documents without a valid level are rejected
// so no chunk can reach the index untagged.
func (p *Processor) Process(_ context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error) {
	if !doc.Permission.IsValid() {
		return nil, fmt.Errorf("%w: document %s has permission %q", domain.ErrInvalidInput, doc.ID, doc.Permission)
	}

	for i := range chunks {
		chunks[i].Permission = doc.Permission
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = make(map[string]any)
		}
		chunks[i].Metadata["title"] = doc.Title
		chunks[i].Metadata["source_type"] = string(doc.SourceType)
	}

	return chunks, nil
}

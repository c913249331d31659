package driven

import (
	"context"

	"github.com/custodia-labs/kb/internal/core/domain"
)

// Normaliser extracts plain text from one family of upload formats.
type Normaliser interface {
	SupportedMIMETypes() []string

	// Priority orders normalisers that claim the same MIME type; the
	// highest wins. Catch-all text extraction sits below 10.
	Priority() int

	// Normalise fills Document.Content from raw.Data. Input that cannot be
	// decoded yields an error wrapping domain.ErrParse.
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)
}

// NormaliseResult carries the extracted document. Chunks are produced
// later by the PostProcessorPipeline.
type NormaliseResult struct {
	Document domain.Document
}

// NormaliserRegistry dispatches a RawDocument to the preferred Normaliser
// for its MIME type.
type NormaliserRegistry interface {
	Normalise(ctx context.Context, raw *domain.RawDocument) (*NormaliseResult, error)
	Register(normaliser Normaliser)
	SupportedMIMETypes() []string
}

package driving

import (
	"context"

	"github.com/custodia-labs/kb/internal/core/domain"
)

// IngestionService accepts uploads and runs them through the
// parse, chunk, embed and index pipeline on a worker pool.
type IngestionService interface {
	// Upload stores a new pending document and queues it for ingestion.
	Upload(ctx context.Context, req UploadRequest) (*domain.Document, error)

	// Retry resets a failed or ready document to pending and re-queues it.
	Retry(ctx context.Context, documentID string) (*domain.Document, error)

	// Wait blocks until the document reaches a terminal state or ctx ends.
	Wait(ctx context.Context, documentID string) (*domain.Document, error)

	// Stats reports pool counters.
	Stats() IngestionStats
}

// UploadRequest is the upload boundary input.
type UploadRequest struct {
	// Filename is the uploaded file name.
	Filename string `validate:"required"`

	// Content is the file bytes.
	Content []byte `validate:"required"`

	// Title overrides the title derived from the file.
	Title string `validate:"max=512"`

	// SourceType is the file format; inferred from Filename when empty.
	SourceType domain.SourceType `validate:"omitempty,oneof=pdf docx txt md html"`

	// Permission is the access-control level; defaults to private.
	Permission domain.PermissionLevel `validate:"omitempty,permission"`

	// Metadata is stored with the document.
	Metadata map[string]any
}

// IngestionStats are worker pool counters.
type IngestionStats struct {
	Workers   int   `json:"workers"`
	Queued    int64 `json:"queued"`
	InFlight  int64 `json:"in_flight"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// DocumentService manages uploaded documents.
type DocumentService interface {
	// List returns documents matching the filter.
	List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error)

	// Get retrieves a document by ID.
	Get(ctx context.Context, documentID string) (*domain.Document, error)

	// GetContent returns the normalised text of a document.
	GetContent(ctx context.Context, documentID string) (string, error)

	// GetChunks returns a document's chunks ordered by position.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// Delete removes a document and every chunk in the index and store.
	Delete(ctx context.Context, documentID string) error

	// ChangePermission updates a document's level and re-syncs its chunk metadata.
	ChangePermission(ctx context.Context, documentID string, level domain.PermissionLevel) (*domain.Document, error)

	// Stats summarises the corpus.
	Stats(ctx context.Context) (*CorpusStats, error)
}

// CorpusStats summarises documents and vectors.
type CorpusStats struct {
	Documents  int                           `json:"documents"`
	ByStatus   map[domain.DocumentStatus]int `json:"by_status"`
	Vectors    int                           `json:"vectors"`
	Dimensions int                           `json:"dimensions"`
	Ingestion  IngestionStats                `json:"ingestion"`
}

package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// DocumentStatus is the ingestion lifecycle state of a document.
type DocumentStatus string

// Document lifecycle states.
const (
	// StatusPending means the document is stored and waiting for a worker.
	StatusPending DocumentStatus = "pending"

	// StatusProcessing means a worker is parsing, chunking or embedding it.
	StatusProcessing DocumentStatus = "processing"

	// StatusReady means every chunk is indexed and searchable.
	StatusReady DocumentStatus = "ready"

	// StatusFailed means ingestion stopped; no chunks remain in the index.
	StatusFailed DocumentStatus = "failed"
)

// IsValid returns true if the status is recognised.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusReady, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once ingestion has finished either way.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

// String returns the string representation.
func (s DocumentStatus) String() string {
	return string(s)
}

// SourceType is the file format of an uploaded document.
type SourceType string

// Supported source types.
const (
	SourceTypePDF      SourceType = "pdf"
	SourceTypeDOCX     SourceType = "docx"
	SourceTypeText     SourceType = "txt"
	SourceTypeMarkdown SourceType = "md"
	SourceTypeHTML     SourceType = "html"
)

// IsValid returns true if the source type is supported.
func (t SourceType) IsValid() bool {
	_, ok := sourceTypeMIME[t]
	return ok
}

// String returns the string representation.
func (t SourceType) String() string {
	return string(t)
}

// MIMEType returns the MIME type used to select a normaliser.
func (t SourceType) MIMEType() string {
	return sourceTypeMIME[t]
}

var sourceTypeMIME = map[SourceType]string{
	SourceTypePDF:      "application/pdf",
	SourceTypeDOCX:     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	SourceTypeText:     "text/plain",
	SourceTypeMarkdown: "text/markdown",
	SourceTypeHTML:     "text/html",
}

// SourceTypeFromFilename infers the source type from a file extension.
// It returns an empty SourceType when the extension is unknown.
func SourceTypeFromFilename(name string) SourceType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return SourceTypePDF
	case ".docx":
		return SourceTypeDOCX
	case ".txt", ".text", ".log":
		return SourceTypeText
	case ".md", ".markdown":
		return SourceTypeMarkdown
	case ".html", ".htm":
		return SourceTypeHTML
	default:
		return ""
	}
}

// AllSourceTypes returns every supported source type.
func AllSourceTypes() []SourceType {
	return []SourceType{SourceTypePDF, SourceTypeDOCX, SourceTypeText, SourceTypeMarkdown, SourceTypeHTML}
}

// Document represents an uploaded file and its ingestion state.
// It is created on upload and mutated only by the ingestion pipeline.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Title is the human-readable title.
	Title string

	// Filename is the name the file was uploaded with.
	Filename string

	// SourceType is the file format.
	SourceType SourceType

	// Size is the raw byte length of the uploaded file.
	Size int64

	// Permission is the access-control level of the document.
	Permission PermissionLevel

	// Status is the ingestion lifecycle state.
	Status DocumentStatus

	// ChunkCount is the number of indexed chunks once ready.
	ChunkCount int

	// Error is the last ingestion failure message, if any.
	Error string

	// Content is the full text after normalisation.
	Content string

	// Raw holds the uploaded bytes so ingestion can be retried.
	// Listing operations leave it empty.
	Raw []byte

	// Metadata contains arbitrary key-value pairs extracted by normalisers.
	Metadata map[string]any

	// CreatedAt is when the document was uploaded.
	CreatedAt time.Time

	// UpdatedAt is when the document last changed.
	UpdatedAt time.Time

	// IndexedAt is when the document last became ready.
	IndexedAt *time.Time
}

// Chunk represents a searchable unit within a document.
// Documents are split into chunks for granular retrieval.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Content is the text content of this chunk.
	Content string

	// Position is the ordinal position within the document.
	Position int

	// Start is the rune offset of the chunk in the normalised text.
	Start int

	// End is the exclusive rune offset of the chunk in the normalised text.
	End int

	// Permission is a snapshot of the document's level at indexing time.
	Permission PermissionLevel

	// Embedding is the vector representation for semantic search.
	Embedding []float32

	// Metadata contains chunk-specific key-value pairs.
	Metadata map[string]any
}

// Len returns the chunk length in runes.
func (c Chunk) Len() int {
	return c.End - c.Start
}

// DocumentFilter narrows a document listing.
type DocumentFilter struct {
	// Status restricts to one lifecycle state when set.
	Status DocumentStatus

	// SourceType restricts to one file format when set.
	SourceType SourceType

	// Limit is the maximum number of documents; zero means no limit.
	Limit int

	// Offset is the number of documents to skip.
	Offset int
}

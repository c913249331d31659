package domain

import (
	"path/filepath"
	"strings"
)

// RawDocument represents uploaded bytes before normalisation.
type RawDocument struct {
	// DocumentID is the document being ingested.
	DocumentID string

	// Filename is the uploaded file name, used for title fallbacks.
	Filename string

	// MIMEType is the content type (e.g., "application/pdf").
	MIMEType string

	// Content is the raw bytes.
	Content []byte

	// Metadata contains upload-supplied key-value pairs.
	Metadata map[string]any
}

// Title picks the display title for a normalised document. An explicit
// "title" in the upload metadata wins, then the title the normaliser found
// in the content, then the humanised file name.
func (r *RawDocument) Title(found string) string {
	if title, ok := r.Metadata["title"].(string); ok && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title)
	}
	if found = strings.TrimSpace(found); found != "" {
		return found
	}
	return TitleFromFilename(r.Filename)
}

// NewDocument starts the normalised document for r. Metadata is copied so
// normalisers may add keys without touching the upload.
func (r *RawDocument) NewDocument(format, content string) Document {
	metadata := make(map[string]any, len(r.Metadata)+2)
	for k, v := range r.Metadata {
		metadata[k] = v
	}
	metadata["mime_type"] = r.MIMEType
	metadata["format"] = format

	return Document{
		ID:       r.DocumentID,
		Title:    r.Title(""),
		Content:  content,
		Metadata: metadata,
	}
}

// TitleFromFilename turns "release_notes-v2.md" into "release notes v2".
func TitleFromFilename(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.NewReplacer("_", " ", "-", " ").Replace(base)
}

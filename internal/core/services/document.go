package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
	"github.com/custodia-labs/kb/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// DocumentService manages uploaded documents and keeps the vector index
// consistent with the document store.
type DocumentService struct {
	docStore  driven.DocumentStore
	index     driven.VectorIndex
	ingestion *IngestionService
	embedder  *EmbeddingClient
	locks     *keyedMutex
}

// NewDocumentService creates a document service. ingestion and embedder
// may be nil; without ingestion in-flight jobs cannot be cancelled.
func NewDocumentService(
	docStore driven.DocumentStore,
	index driven.VectorIndex,
	ingestion *IngestionService,
	embedder *EmbeddingClient,
) *DocumentService {
	locks := newKeyedMutex()
	if ingestion != nil {
		locks = ingestion.locks
	}
	return &DocumentService{
		docStore:  docStore,
		index:     index,
		ingestion: ingestion,
		embedder:  embedder,
		locks:     locks,
	}
}

// List returns documents matching the filter.
func (s *DocumentService) List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	if s.docStore == nil {
		return nil, domain.ErrNotImplemented
	}
	return s.docStore.ListDocuments(ctx, filter)
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	if s.docStore == nil {
		return nil, domain.ErrNotImplemented
	}
	doc, err := s.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	doc.Raw = nil
	return doc, nil
}

// GetChunks returns a document's chunks ordered by position.
func (s *DocumentService) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	if s.docStore == nil {
		return nil, domain.ErrNotImplemented
	}
	if _, err := s.docStore.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	chunks, err := s.docStore.GetChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Position < chunks[j].Position
	})
	return chunks, nil
}

// GetContent returns the normalised text. When only chunks are stored the
// text is rebuilt from their spans.
func (s *DocumentService) GetContent(ctx context.Context, documentID string) (string, error) {
	if s.docStore == nil {
		return "", domain.ErrNotImplemented
	}

	doc, err := s.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return "", err
	}
	if doc.Content != "" {
		return doc.Content, nil
	}

	chunks, err := s.GetChunks(ctx, documentID)
	if err != nil {
		return "", err
	}
	return joinChunks(chunks), nil
}

// joinChunks concatenates position-ordered chunks, skipping the runes
// each chunk shares with its predecessor.
func joinChunks(chunks []domain.Chunk) string {
	var builder strings.Builder
	end := 0
	for i, chunk := range chunks {
		runes := []rune(chunk.Content)
		skip := 0
		if i > 0 && chunk.Start < end {
			skip = min(end-chunk.Start, len(runes))
		}
		builder.WriteString(string(runes[skip:]))
		end = chunk.End
	}
	return builder.String()
}

// Delete cancels any in-flight ingestion, then removes the document's
// vectors, chunks and record.
func (s *DocumentService) Delete(ctx context.Context, documentID string) error {
	if s.docStore == nil {
		return domain.ErrNotImplemented
	}

	if s.ingestion != nil && s.ingestion.Cancel(documentID) {
		logger.Info("Cancelled in-flight ingestion of %s", documentID)
	}

	unlock := s.locks.Lock(documentID)
	defer unlock()

	if _, err := s.docStore.GetDocument(ctx, documentID); err != nil {
		return err
	}

	removed, err := s.index.DeleteByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if err := s.docStore.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	logger.Info("Deleted %s and %d vectors", documentID, removed)
	return nil
}

// ChangePermission re-upserts every chunk vector with the new level, then
// saves the chunks and finally the document record. Vector order is
// preserved. If a later step fails the earlier ones are reverted; when the
// index cannot be reverted the document's vectors are removed so no chunk
// stays readable under a level its record no longer carries.
func (s *DocumentService) ChangePermission(
	ctx context.Context, documentID string, level domain.PermissionLevel,
) (*domain.Document, error) {
	if !level.IsValid() {
		return nil, fmt.Errorf("%w: permission %q", domain.ErrInvalidInput, level)
	}

	unlock := s.locks.Lock(documentID)
	defer unlock()

	doc, err := s.docStore.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	chunks, err := s.docStore.GetChunks(ctx, documentID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	if err := s.embedMissing(ctx, chunks); err != nil {
		return nil, err
	}
	previous := slices.Clone(chunks)

	for i := range chunks {
		chunks[i].Permission = level
	}
	if len(chunks) > 0 {
		if err := s.index.Upsert(ctx, vectorEntries(chunks)...); err != nil {
			return nil, fmt.Errorf("re-index chunks: %w", err)
		}
		if err := s.docStore.SaveChunks(ctx, chunks); err != nil {
			s.revertPermission(ctx, documentID, previous)
			return nil, fmt.Errorf("save chunks: %w", err)
		}
	}

	doc.Permission = level
	doc.UpdatedAt = time.Now()
	if err := s.docStore.SaveDocument(ctx, doc); err != nil {
		if len(chunks) > 0 {
			s.revertPermission(ctx, documentID, previous)
		}
		return nil, fmt.Errorf("save document: %w", err)
	}

	logger.Info("Permission of %s set to %s (%d chunks)", documentID, level, len(chunks))
	doc.Raw = nil
	return doc, nil
}

// embedMissing fills in vectors for chunks stored without one.
func (s *DocumentService) embedMissing(ctx context.Context, chunks []domain.Chunk) error {
	var missing []int
	for i := range chunks {
		if len(chunks[i].Embedding) == 0 {
			missing = append(missing, i)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if s.embedder == nil {
		return fmt.Errorf("%w: %d chunks have no stored vector", domain.ErrEmbeddingUnavailable, len(missing))
	}

	texts := make([]string, len(missing))
	for j, i := range missing {
		texts[j] = chunks[i].Content
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("re-embed chunks: %w", err)
	}
	for j, i := range missing {
		chunks[i].Embedding = vectors[j]
	}
	return nil
}

// revertPermission puts chunks and vectors back to their earlier levels.
// Failing that, the vectors are dropped.
func (s *DocumentService) revertPermission(ctx context.Context, documentID string, previous []domain.Chunk) {
	ctx = context.WithoutCancel(ctx)
	if err := s.docStore.SaveChunks(ctx, previous); err != nil {
		logger.Error("Restore chunks of %s: %v", documentID, err)
	}
	err := s.index.Upsert(ctx, vectorEntries(previous)...)
	if err == nil {
		return
	}
	logger.Error("Restore vectors of %s: %v", documentID, err)
	if _, err := s.index.DeleteByDocument(ctx, documentID); err != nil {
		logger.Error("Drop vectors of %s: %v", documentID, err)
	}
}

func vectorEntries(chunks []domain.Chunk) []driven.VectorEntry {
	entries := make([]driven.VectorEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = driven.VectorEntry{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Position:   c.Position,
			Permission: c.Permission,
			Embedding:  c.Embedding,
		}
	}
	return entries
}

// Stats summarises documents by status and the index size.
func (s *DocumentService) Stats(ctx context.Context) (*driving.CorpusStats, error) {
	docs, err := s.docStore.ListDocuments(ctx, domain.DocumentFilter{})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	stats := &driving.CorpusStats{
		Documents:  len(docs),
		ByStatus:   make(map[domain.DocumentStatus]int),
		Dimensions: s.index.Dimensions(),
	}
	for i := range docs {
		stats.ByStatus[docs[i].Status]++
	}

	stats.Vectors, err = s.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count vectors: %w", err)
	}
	if s.ingestion != nil {
		stats.Ingestion = s.ingestion.Stats()
	}
	return stats, nil
}

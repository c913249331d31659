package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore is an in-memory implementation of driven.DocumentStore.
type DocumentStore struct {
	mu         sync.RWMutex
	documents  map[string]domain.Document
	chunks     map[string][]domain.Chunk
	chunkOwner map[string]string
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents:  make(map[string]domain.Document),
		chunks:     make(map[string][]domain.Chunk),
		chunkOwner: make(map[string]string),
	}
}

// SaveDocument stores or updates a document.
func (s *DocumentStore) SaveDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[doc.ID] = cloneDocument(*doc)
	return nil
}

// UpdateStatus changes a document's lifecycle state.
func (s *DocumentStore) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.Status = status
	doc.Error = ""
	if status == domain.StatusFailed {
		doc.Error = errMsg
	}
	doc.UpdatedAt = time.Now()
	s.documents[id] = doc
	return nil
}

// TransitionStatus moves a document from one state to another.
func (s *DocumentStore) TransitionStatus(_ context.Context, id string, from, to domain.DocumentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if doc.Status != from {
		return false, nil
	}
	doc.Status = to
	doc.Error = ""
	doc.UpdatedAt = time.Now()
	s.documents[id] = doc
	return true, nil
}

// SaveChunks inserts or replaces chunks by ID.
func (s *DocumentStore) SaveChunks(_ context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]bool)
	for _, chunk := range chunks {
		chunk = cloneChunk(chunk)
		list := s.chunks[chunk.DocumentID]
		replaced := false
		for i := range list {
			if list[i].ID == chunk.ID {
				list[i] = chunk
				replaced = true
				break
			}
		}
		if !replaced {
			list = append(list, chunk)
		}
		s.chunks[chunk.DocumentID] = list
		s.chunkOwner[chunk.ID] = chunk.DocumentID
		touched[chunk.DocumentID] = true
	}

	for docID := range touched {
		list := s.chunks[docID]
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Position < list[j].Position
		})
	}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneDocument(doc)
	return &out, nil
}

// GetChunks retrieves all chunks for a document ordered by position.
func (s *DocumentStore) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.chunks[documentID]
	out := make([]domain.Chunk, len(list))
	for i := range list {
		out[i] = cloneChunk(list[i])
	}
	return out, nil
}

// GetChunk retrieves a specific chunk by ID.
func (s *DocumentStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docID, ok := s.chunkOwner[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	for _, chunk := range s.chunks[docID] {
		if chunk.ID == id {
			out := cloneChunk(chunk)
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

// DeleteChunks removes every chunk of a document.
func (s *DocumentStore) DeleteChunks(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteChunksLocked(documentID)
	return nil
}

func (s *DocumentStore) deleteChunksLocked(documentID string) {
	for _, chunk := range s.chunks[documentID] {
		delete(s.chunkOwner, chunk.ID)
	}
	delete(s.chunks, documentID)
}

// DeleteDocument removes a document and its chunks.
func (s *DocumentStore) DeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, id)
	s.deleteChunksLocked(id)
	return nil
}

// ListDocuments returns documents matching the filter, newest first.
func (s *DocumentStore) ListDocuments(_ context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Document, 0, len(s.documents))
	for id := range s.documents {
		doc := s.documents[id]
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		if filter.SourceType != "" && doc.SourceType != filter.SourceType {
			continue
		}
		doc.Raw = nil
		doc.Content = ""
		doc.Metadata = cloneMetadata(doc.Metadata)
		result = append(result, doc)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	return paginate(result, filter.Offset, filter.Limit), nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return []T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneDocument(doc domain.Document) domain.Document {
	if doc.Raw != nil {
		doc.Raw = append([]byte(nil), doc.Raw...)
	}
	if doc.IndexedAt != nil {
		t := *doc.IndexedAt
		doc.IndexedAt = &t
	}
	doc.Metadata = cloneMetadata(doc.Metadata)
	return doc
}

func cloneChunk(chunk domain.Chunk) domain.Chunk {
	if chunk.Embedding != nil {
		chunk.Embedding = append([]float32(nil), chunk.Embedding...)
	}
	chunk.Metadata = cloneMetadata(chunk.Metadata)
	return chunk
}

func cloneMetadata(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

package httpapi

import (
	"context"
	"sync"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

type mockIngestionService struct {
	mu         sync.Mutex
	document   *domain.Document
	err        error
	lastUpload driving.UploadRequest
}

func (m *mockIngestionService) Upload(_ context.Context, req driving.UploadRequest) (*domain.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUpload = req
	if m.err != nil {
		return nil, m.err
	}
	return m.document, nil
}

func (m *mockIngestionService) Retry(_ context.Context, _ string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.document, nil
}

func (m *mockIngestionService) Wait(_ context.Context, _ string) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockIngestionService) Stats() driving.IngestionStats {
	return driving.IngestionStats{Workers: 2}
}

type mockDocumentService struct {
	documents  []domain.Document
	document   *domain.Document
	content    string
	chunks     []domain.Chunk
	stats      *driving.CorpusStats
	err        error
	lastFilter domain.DocumentFilter
	lastLevel  domain.PermissionLevel
	deletedID  string
}

func (m *mockDocumentService) List(_ context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	m.lastFilter = filter
	return m.documents, m.err
}

func (m *mockDocumentService) Get(_ context.Context, _ string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.document, nil
}

func (m *mockDocumentService) GetContent(_ context.Context, _ string) (string, error) {
	return m.content, m.err
}

func (m *mockDocumentService) GetChunks(_ context.Context, _ string) ([]domain.Chunk, error) {
	return m.chunks, m.err
}

func (m *mockDocumentService) Delete(_ context.Context, id string) error {
	m.deletedID = id
	return m.err
}

func (m *mockDocumentService) ChangePermission(
	_ context.Context,
	_ string,
	level domain.PermissionLevel,
) (*domain.Document, error) {
	m.lastLevel = level
	if m.err != nil {
		return nil, m.err
	}
	doc := *m.document
	doc.Permission = level
	return &doc, nil
}

func (m *mockDocumentService) Stats(_ context.Context) (*driving.CorpusStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.stats, nil
}

type mockQueryService struct {
	response   *driving.AskResponse
	sources    []domain.Source
	err        error
	lastAsk    driving.AskRequest
	lastSearch domain.RetrieveOptions
}

func (m *mockQueryService) Ask(_ context.Context, req driving.AskRequest) (*driving.AskResponse, error) {
	m.lastAsk = req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockQueryService) Search(_ context.Context, _ string, opts domain.RetrieveOptions) ([]domain.Source, error) {
	m.lastSearch = opts
	return m.sources, m.err
}

type mockConversationService struct {
	conversations []domain.Conversation
	messages      []domain.Message
	err           error
	lastOpts      domain.ListOptions
}

func (m *mockConversationService) List(_ context.Context, opts domain.ListOptions) ([]domain.Conversation, error) {
	m.lastOpts = opts
	return m.conversations, m.err
}

func (m *mockConversationService) Get(_ context.Context, _ string) (*domain.Conversation, []domain.Message, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	if len(m.conversations) == 0 {
		return nil, nil, domain.ErrNotFound
	}
	return &m.conversations[0], m.messages, nil
}

func (m *mockConversationService) Delete(_ context.Context, _ string) error {
	return m.err
}

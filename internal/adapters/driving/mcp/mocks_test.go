package mcp

import (
	"context"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	response *driving.AskResponse
	sources  []domain.Source
	err      error

	lastAsk    driving.AskRequest
	lastQuery  string
	lastSearch domain.RetrieveOptions
}

func (m *mockQueryService) Ask(_ context.Context, req driving.AskRequest) (*driving.AskResponse, error) {
	m.lastAsk = req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockQueryService) Search(
	_ context.Context,
	query string,
	opts domain.RetrieveOptions,
) ([]domain.Source, error) {
	m.lastQuery = query
	m.lastSearch = opts
	return m.sources, m.err
}

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	documents  []domain.Document
	document   *domain.Document
	content    string
	err        error
	lastFilter domain.DocumentFilter
}

func (m *mockDocumentService) List(_ context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	m.lastFilter = filter
	return m.documents, m.err
}

func (m *mockDocumentService) Get(_ context.Context, _ string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.document == nil {
		return nil, domain.ErrNotFound
	}
	return m.document, nil
}

func (m *mockDocumentService) GetContent(_ context.Context, _ string) (string, error) {
	return m.content, m.err
}

func (m *mockDocumentService) GetChunks(_ context.Context, _ string) ([]domain.Chunk, error) {
	return nil, m.err
}

func (m *mockDocumentService) Delete(_ context.Context, _ string) error {
	return m.err
}

func (m *mockDocumentService) ChangePermission(
	_ context.Context,
	_ string,
	_ domain.PermissionLevel,
) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockDocumentService) Stats(_ context.Context) (*driving.CorpusStats, error) {
	return &driving.CorpusStats{}, m.err
}

// mockConversationService is a mock implementation of driving.ConversationService.
type mockConversationService struct {
	conversation *domain.Conversation
	messages     []domain.Message
	err          error
}

func (m *mockConversationService) List(_ context.Context, _ domain.ListOptions) ([]domain.Conversation, error) {
	if m.conversation == nil {
		return nil, m.err
	}
	return []domain.Conversation{*m.conversation}, m.err
}

func (m *mockConversationService) Get(_ context.Context, _ string) (*domain.Conversation, []domain.Message, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	if m.conversation == nil {
		return nil, nil, domain.ErrNotFound
	}
	return m.conversation, m.messages, nil
}

func (m *mockConversationService) Delete(_ context.Context, _ string) error {
	return m.err
}

package tui

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

// MockQueryService implements driving.QueryService for testing.
type MockQueryService struct {
	AskFunc func(ctx context.Context, req driving.AskRequest) (*driving.AskResponse, error)
	lastAsk driving.AskRequest
}

func (m *MockQueryService) Ask(ctx context.Context, req driving.AskRequest) (*driving.AskResponse, error) {
	m.lastAsk = req
	if m.AskFunc != nil {
		return m.AskFunc(ctx, req)
	}
	return &driving.AskResponse{ConversationID: "conv-1"}, nil
}

func (m *MockQueryService) Search(context.Context, string, domain.RetrieveOptions) ([]domain.Source, error) {
	return nil, nil
}

// MockDocumentService implements driving.DocumentService for testing.
type MockDocumentService struct {
	Docs    []domain.Document
	Content string
	GetErr  error
}

func (m *MockDocumentService) List(context.Context, domain.DocumentFilter) ([]domain.Document, error) {
	return m.Docs, nil
}

func (m *MockDocumentService) Get(_ context.Context, id string) (*domain.Document, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	for i := range m.Docs {
		if m.Docs[i].ID == id {
			return &m.Docs[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockDocumentService) GetContent(context.Context, string) (string, error) {
	return m.Content, nil
}

func (m *MockDocumentService) GetChunks(context.Context, string) ([]domain.Chunk, error) {
	return nil, nil
}

func (m *MockDocumentService) Delete(context.Context, string) error {
	return nil
}

func (m *MockDocumentService) ChangePermission(
	_ context.Context, id string, level domain.PermissionLevel,
) (*domain.Document, error) {
	return &domain.Document{ID: id, Permission: level}, nil
}

func (m *MockDocumentService) Stats(context.Context) (*driving.CorpusStats, error) {
	return &driving.CorpusStats{Documents: len(m.Docs)}, nil
}

func TestPorts_Validate(t *testing.T) {
	tests := []struct {
		name  string
		ports *Ports
		want  error
	}{
		{"nil", nil, ErrInvalidPorts},
		{"missing query", &Ports{Document: &MockDocumentService{}}, ErrMissingQueryService},
		{"missing documents", &Ports{Query: &MockQueryService{}}, ErrMissingDocumentService},
		{"valid", &Ports{Query: &MockQueryService{}, Document: &MockDocumentService{}}, nil},
		{
			"bad scope",
			&Ports{
				Query:    &MockQueryService{},
				Document: &MockDocumentService{},
				Scope:    domain.Scope{"secret"},
			},
			domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ports.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestPorts_ScopeDefaultsToFull(t *testing.T) {
	p := &Ports{}
	assert.Equal(t, domain.FullScope(), p.scope())

	p.Scope = domain.Scope{domain.PermissionPublic}
	assert.Equal(t, domain.Scope{domain.PermissionPublic}, p.scope())
}

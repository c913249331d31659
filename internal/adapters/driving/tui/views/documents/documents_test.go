package documents

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kb/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

// MockDocumentService implements driving.DocumentService for testing.
type MockDocumentService struct {
	ListFunc   func(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error)
	GetFunc    func(ctx context.Context, documentID string) (*domain.Document, error)
	DeleteFunc func(ctx context.Context, documentID string) error
	deleted    []string
}

func (m *MockDocumentService) List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return nil, nil
}

func (m *MockDocumentService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, documentID)
	}
	return &domain.Document{ID: documentID}, nil
}

func (m *MockDocumentService) GetContent(context.Context, string) (string, error) {
	return "", nil
}

func (m *MockDocumentService) GetChunks(context.Context, string) ([]domain.Chunk, error) {
	return nil, nil
}

func (m *MockDocumentService) Delete(ctx context.Context, documentID string) error {
	m.deleted = append(m.deleted, documentID)
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, documentID)
	}
	return nil
}

func (m *MockDocumentService) ChangePermission(
	_ context.Context, documentID string, level domain.PermissionLevel,
) (*domain.Document, error) {
	return &domain.Document{ID: documentID, Permission: level}, nil
}

func (m *MockDocumentService) Stats(context.Context) (*driving.CorpusStats, error) {
	return &driving.CorpusStats{}, nil
}

// MockIngestionService implements driving.IngestionService for testing.
type MockIngestionService struct {
	RetryFunc func(ctx context.Context, documentID string) (*domain.Document, error)
	retried   []string
}

func (m *MockIngestionService) Upload(context.Context, driving.UploadRequest) (*domain.Document, error) {
	return nil, nil
}

func (m *MockIngestionService) Retry(ctx context.Context, documentID string) (*domain.Document, error) {
	m.retried = append(m.retried, documentID)
	if m.RetryFunc != nil {
		return m.RetryFunc(ctx, documentID)
	}
	return &domain.Document{ID: documentID, Status: domain.StatusPending}, nil
}

func (m *MockIngestionService) Wait(context.Context, string) (*domain.Document, error) {
	return nil, nil
}

func (m *MockIngestionService) Stats() driving.IngestionStats {
	return driving.IngestionStats{}
}

func sampleDocuments() []domain.Document {
	return []domain.Document{
		{ID: "doc-1", Title: "Handbook", SourceType: domain.SourceTypePDF, Permission: domain.PermissionPublic,
			Status: domain.StatusReady, ChunkCount: 12},
		{ID: "doc-2", Filename: "notes.md", SourceType: domain.SourceTypeMarkdown, Permission: domain.PermissionPrivate,
			Status: domain.StatusFailed, Error: "no text"},
	}
}

func listing(docs []domain.Document) *MockDocumentService {
	return &MockDocumentService{
		ListFunc: func(context.Context, domain.DocumentFilter) ([]domain.Document, error) {
			return docs, nil
		},
	}
}

// loaded returns a view whose document list has been loaded.
func loaded(t *testing.T, docs *MockDocumentService, ingestion driving.IngestionService) *View {
	t.Helper()
	v := NewView(nil, docs, ingestion)
	v.SetDimensions(120, 30)
	cmd := v.Init()
	require.NotNil(t, cmd)
	v, _ = v.Update(cmd())
	return v
}

// choose opens the action menu on the selected document and picks action.
func choose(v *View, action Action) (*View, tea.Cmd) {
	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	for range int(action) {
		v, _ = v.Update(tea.KeyMsg{Type: tea.KeyDown})
	}
	return v.Update(tea.KeyMsg{Type: tea.KeyEnter})
}

func TestView_Load(t *testing.T) {
	v := NewView(nil, listing(sampleDocuments()), nil)

	cmd := v.Init()
	assert.True(t, v.Loading())
	assert.Contains(t, v.View(), "Loading documents...")

	v, _ = v.Update(cmd())

	assert.False(t, v.Loading())
	assert.Len(t, v.Documents(), 2)
	assert.NoError(t, v.Err())
}

func TestView_LoadError(t *testing.T) {
	docs := &MockDocumentService{
		ListFunc: func(context.Context, domain.DocumentFilter) ([]domain.Document, error) {
			return nil, domain.ErrIndexUnavailable
		},
	}
	v := loaded(t, docs, nil)

	assert.ErrorIs(t, v.Err(), domain.ErrIndexUnavailable)
	assert.Contains(t, v.View(), "Error:")
}

func TestView_NoService(t *testing.T) {
	v := NewView(nil, nil, nil)
	v, _ = v.Update(v.Init()())

	assert.ErrorIs(t, v.Err(), ErrNoDocumentService)
}

func TestView_Empty(t *testing.T) {
	v := loaded(t, listing(nil), nil)

	assert.Contains(t, v.View(), "No documents uploaded")
}

func TestView_Render(t *testing.T) {
	v := loaded(t, listing(sampleDocuments()), nil)

	view := v.View()

	assert.Contains(t, view, "Documents (2)")
	assert.Contains(t, view, "Handbook")
	assert.Contains(t, view, "notes.md", "untitled documents show their filename")
	assert.Contains(t, view, "ready")
	assert.Contains(t, view, "failed")
}

func TestView_Navigation(t *testing.T) {
	v := loaded(t, listing(sampleDocuments()), nil)

	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	assert.Equal(t, 1, v.SelectedIndex())
	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 1, v.SelectedIndex())
	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	assert.Equal(t, "doc-1", v.SelectedDocument().ID)
}

func TestView_ActionMenu(t *testing.T) {
	v := loaded(t, listing(sampleDocuments()), nil)

	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, v.IsShowingMenu())
	assert.Equal(t, ActionShowContent, v.MenuSelected())
	assert.Contains(t, v.View(), "Actions for: Handbook")
	assert.Contains(t, v.View(), "Retry Ingestion")

	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, v.IsShowingMenu())
}

func TestView_ShowContent(t *testing.T) {
	v := loaded(t, listing(sampleDocuments()), nil)

	_, cmd := choose(v, ActionShowContent)
	require.NotNil(t, cmd)

	msg, ok := cmd().(messages.DocumentSelected)
	require.True(t, ok)
	assert.Equal(t, "doc-1", msg.Document.ID)
	assert.Equal(t, messages.ViewDocuments, msg.From)
}

func TestView_ShowDetails(t *testing.T) {
	docs := listing(sampleDocuments())
	docs.GetFunc = func(_ context.Context, id string) (*domain.Document, error) {
		return &domain.Document{ID: id, Title: "fresh"}, nil
	}
	v := loaded(t, docs, nil)

	_, cmd := choose(v, ActionShowDetails)
	require.NotNil(t, cmd)

	msg, ok := cmd().(messages.DocumentDetailsLoaded)
	require.True(t, ok)
	require.NoError(t, msg.Err)
	assert.Equal(t, "fresh", msg.Document.Title)
}

func TestView_Retry(t *testing.T) {
	ingestion := &MockIngestionService{}
	v := loaded(t, listing(sampleDocuments()), ingestion)
	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyDown})

	v, cmd := choose(v, ActionRetry)
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, messages.DocumentRetried{DocumentID: "doc-2"}, msg)
	assert.Equal(t, []string{"doc-2"}, ingestion.retried)

	v, reload := v.Update(msg)
	assert.NotNil(t, reload)
	assert.Equal(t, "Re-queued doc-2", v.Notice())
}

func TestView_RetryWithoutIngestion(t *testing.T) {
	v := loaded(t, listing(sampleDocuments()), nil)

	v, cmd := choose(v, ActionRetry)
	v, _ = v.Update(cmd())

	assert.ErrorIs(t, v.Err(), ErrNoIngestionService)
}

func TestView_Delete(t *testing.T) {
	docs := listing(sampleDocuments())
	v := loaded(t, docs, nil)

	v, cmd := choose(v, ActionDelete)
	require.NotNil(t, cmd)
	v, reload := v.Update(cmd())

	assert.Equal(t, []string{"doc-1"}, docs.deleted)
	assert.NotNil(t, reload)
	assert.Equal(t, "Deleted doc-1", v.Notice())
}

func TestView_DeleteError(t *testing.T) {
	docs := listing(sampleDocuments())
	docs.DeleteFunc = func(context.Context, string) error {
		return domain.ErrDocumentBusy
	}
	v := loaded(t, docs, nil)

	v, cmd := choose(v, ActionDelete)
	v, reload := v.Update(cmd())

	assert.Nil(t, reload)
	assert.True(t, errors.Is(v.Err(), domain.ErrDocumentBusy))
}

func TestView_Cancel(t *testing.T) {
	v := loaded(t, listing(sampleDocuments()), nil)

	v, cmd := choose(v, ActionCancel)

	assert.Nil(t, cmd)
	assert.False(t, v.IsShowingMenu())
}

func TestView_ReloadShrinksSelection(t *testing.T) {
	docs := sampleDocuments()
	v := loaded(t, listing(docs), nil)
	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyDown})

	v, _ = v.Update(messages.DocumentsLoaded{Documents: docs[:1]})

	assert.Equal(t, 0, v.SelectedIndex())
}

func TestView_KeysReloadAndBack(t *testing.T) {
	v := loaded(t, listing(sampleDocuments()), nil)

	_, cmd := v.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	require.NotNil(t, cmd)
	assert.IsType(t, messages.DocumentsLoaded{}, cmd())

	_, cmd = v.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, messages.ViewChanged{View: messages.ViewMenu}, cmd())
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "Show Content", ActionShowContent.String())
	assert.Equal(t, "Delete", ActionDelete.String())
}

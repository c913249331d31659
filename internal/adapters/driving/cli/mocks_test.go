package cli

import (
	"bytes"
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

// Mock services for CLI testing.

type mockIngestionService struct {
	uploaded   driving.UploadRequest
	waitStatus domain.DocumentStatus
	err        error
}

func (m *mockIngestionService) Upload(_ context.Context, req driving.UploadRequest) (*domain.Document, error) {
	m.uploaded = req
	if m.err != nil {
		return nil, m.err
	}
	title := req.Title
	if title == "" {
		title = req.Filename
	}
	permission := req.Permission
	if permission == "" {
		permission = domain.PermissionPrivate
	}
	return &domain.Document{
		ID:         "doc-new",
		Title:      title,
		Filename:   req.Filename,
		SourceType: domain.SourceTypeFromFilename(req.Filename),
		Permission: permission,
		Status:     domain.StatusPending,
	}, nil
}

func (m *mockIngestionService) Retry(_ context.Context, id string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Document{ID: id, Status: domain.StatusPending}, nil
}

func (m *mockIngestionService) Wait(_ context.Context, id string) (*domain.Document, error) {
	status := m.waitStatus
	if status == "" {
		status = domain.StatusReady
	}
	doc := &domain.Document{ID: id, Status: status, ChunkCount: 3}
	if status == domain.StatusFailed {
		doc.Error = "parse error: corrupt file"
	}
	return doc, nil
}

func (m *mockIngestionService) Stats() driving.IngestionStats {
	return driving.IngestionStats{Workers: 4}
}

type mockDocumentService struct {
	err        error
	lastFilter domain.DocumentFilter
	deleted    string
}

func testDocuments() []domain.Document {
	created := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	return []domain.Document{
		{
			ID:         "doc-1",
			Title:      "Test Document 1",
			Filename:   "one.md",
			SourceType: domain.SourceTypeMarkdown,
			Permission: domain.PermissionPublic,
			Status:     domain.StatusReady,
			ChunkCount: 2,
			Metadata:   map[string]any{"author": "Ada"},
			CreatedAt:  created,
			UpdatedAt:  created,
		},
		{
			ID:         "doc-2",
			Title:      "Test Document 2",
			Filename:   "two.pdf",
			SourceType: domain.SourceTypePDF,
			Permission: domain.PermissionPrivate,
			Status:     domain.StatusFailed,
			Error:      "parse error",
			CreatedAt:  created,
			UpdatedAt:  created,
		},
	}
}

func (m *mockDocumentService) List(_ context.Context, filter domain.DocumentFilter) ([]domain.Document, error) {
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	return testDocuments(), nil
}

func (m *mockDocumentService) Get(_ context.Context, id string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, d := range testDocuments() {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocumentService) GetContent(_ context.Context, _ string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return "The cat sat. The dog ran.", nil
}

func (m *mockDocumentService) GetChunks(_ context.Context, id string) ([]domain.Chunk, error) {
	if m.err != nil {
		return nil, m.err
	}
	return []domain.Chunk{
		{ID: id + "-0", Position: 0, Start: 0, End: 20, Content: "The cat sat. The dog"},
		{ID: id + "-1", Position: 1, Start: 15, End: 25, Content: "e dog ran."},
	}, nil
}

func (m *mockDocumentService) Delete(_ context.Context, id string) error {
	m.deleted = id
	return m.err
}

func (m *mockDocumentService) ChangePermission(
	_ context.Context,
	id string,
	level domain.PermissionLevel,
) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.Document{ID: id, Permission: level}, nil
}

func (m *mockDocumentService) Stats(_ context.Context) (*driving.CorpusStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &driving.CorpusStats{
		Documents:  2,
		ByStatus:   map[domain.DocumentStatus]int{domain.StatusReady: 1, domain.StatusFailed: 1},
		Vectors:    2,
		Dimensions: 1024,
		Ingestion:  driving.IngestionStats{Workers: 4, Processed: 2, Failed: 1},
	}, nil
}

type mockQueryService struct {
	err        error
	lastAsk    driving.AskRequest
	lastQuery  string
	lastSearch domain.RetrieveOptions
}

func (m *mockQueryService) Ask(_ context.Context, req driving.AskRequest) (*driving.AskResponse, error) {
	m.lastAsk = req
	if m.err != nil {
		return nil, m.err
	}
	conv := req.ConversationID
	if conv == "" {
		conv = "conv-new"
	}
	return &driving.AskResponse{
		Answer:         "The cat sat on the mat [1].",
		ConversationID: conv,
		HasContext:     true,
		Citations:      []int{1},
		Sources: []domain.Source{{
			DocumentID:    "doc-1",
			ChunkID:       "doc-1-0",
			DocumentTitle: "Test Document 1",
			Content:       "The cat sat.",
			Score:         0.82,
		}},
	}, nil
}

func (m *mockQueryService) Search(_ context.Context, query string, opts domain.RetrieveOptions) ([]domain.Source, error) {
	m.lastQuery = query
	m.lastSearch = opts
	if m.err != nil {
		return nil, m.err
	}
	if query == "nothing" {
		return nil, nil
	}
	return []domain.Source{{
		DocumentID:    "doc-1",
		ChunkID:       "doc-1-0",
		DocumentTitle: "Test Document 1",
		Content:       "The cat sat.",
		Score:         0.75,
	}}, nil
}

type mockConversationService struct {
	err      error
	lastOpts domain.ListOptions
	deleted  string
}

func (m *mockConversationService) List(_ context.Context, opts domain.ListOptions) ([]domain.Conversation, error) {
	m.lastOpts = opts
	if m.err != nil {
		return nil, m.err
	}
	ts := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return []domain.Conversation{{ID: "conv-1", Title: "Where did the cat sit?", MessageCount: 2, CreatedAt: ts, UpdatedAt: ts}}, nil
}

func (m *mockConversationService) Get(_ context.Context, id string) (*domain.Conversation, []domain.Message, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	if id != "conv-1" {
		return nil, nil, domain.ErrNotFound
	}
	ts := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return &domain.Conversation{ID: id, Title: "Where did the cat sit?", CreatedAt: ts, UpdatedAt: ts},
		[]domain.Message{
			{Seq: 1, Role: domain.RoleUser, Content: "Where did the cat sit?", CreatedAt: ts},
			{
				Seq:       2,
				Role:      domain.RoleAssistant,
				Content:   "On the mat [1].",
				Sources:   []domain.Source{{DocumentID: "doc-1", DocumentTitle: "Test Document 1", Score: 0.8}},
				CreatedAt: ts,
			},
		}, nil
}

func (m *mockConversationService) Delete(_ context.Context, id string) error {
	m.deleted = id
	return m.err
}

type mockSettingsService struct {
	settings     domain.Settings
	set          map[string]string
	validateErr  error
	embeddingErr error
	llmErr       error
	setErr       error
}

func newMockSettingsService() *mockSettingsService {
	return &mockSettingsService{settings: domain.DefaultSettings(), set: map[string]string{}}
}

func (m *mockSettingsService) Get() (*domain.Settings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Set(key, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.set[key] = value
	return nil
}

func (m *mockSettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

func (m *mockSettingsService) Validate() error {
	return m.validateErr
}

func (m *mockSettingsService) ValidateEmbeddingConfig() error {
	return m.embeddingErr
}

func (m *mockSettingsService) ValidateLLMConfig() error {
	return m.llmErr
}

// testServices holds the mocks injected by setupTestServices.
type testServices struct {
	ingestion    *mockIngestionService
	document     *mockDocumentService
	query        *mockQueryService
	conversation *mockConversationService
	settings     *mockSettingsService
}

// setupTestServices injects fresh mocks and returns a cleanup function.
func setupTestServices() (*testServices, func()) {
	ts := &testServices{
		ingestion:    &mockIngestionService{},
		document:     &mockDocumentService{},
		query:        &mockQueryService{},
		conversation: &mockConversationService{},
		settings:     newMockSettingsService(),
	}
	SetServices(Services{
		Ingestion:    ts.ingestion,
		Document:     ts.document,
		Query:        ts.query,
		Conversation: ts.conversation,
		Settings:     ts.settings,
	})
	return ts, func() {
		SetServices(Services{})
	}
}

// executeCommand runs the root command with args and returns combined output.
// Flags are reset afterwards so tests do not leak state into each other.
func executeCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		resetFlags(rootCmd)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

// executeWithInput is executeCommand with stdin content.
func executeWithInput(input string, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(bytes.NewBufferString(input))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		resetFlags(rootCmd)
	}()

	err := rootCmd.Execute()
	return buf.String(), err
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		}
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

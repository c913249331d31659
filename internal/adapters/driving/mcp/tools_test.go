package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

func newTestServer(t *testing.T, ports *Ports) *Server {
	t.Helper()
	server, err := NewServer(ports)
	require.NoError(t, err)
	return server
}

func TestServer_handleAsk(t *testing.T) {
	ctx := context.Background()

	t.Run("returns answer with sources", func(t *testing.T) {
		query := &mockQueryService{
			response: &driving.AskResponse{
				Answer:         "Paris is the capital [1].",
				ConversationID: "conv-1",
				HasContext:     true,
				Citations:      []int{1},
				Sources: []domain.Source{{
					DocumentID:    "doc-1",
					ChunkID:       "doc-1-0",
					DocumentTitle: "Geography",
					Content:       "Paris is the capital of France.",
					Score:         0.91,
				}},
			},
		}
		server := newTestServer(t, &Ports{Query: query, Scope: domain.FullScope()})

		_, output, err := server.handleAsk(ctx, nil, AskInput{
			Question:       "What is the capital?",
			ConversationID: "conv-1",
			TopK:           3,
			Rerank:         true,
		})

		require.NoError(t, err)
		assert.Equal(t, "Paris is the capital [1].", output.Answer)
		assert.Equal(t, "conv-1", output.ConversationID)
		assert.True(t, output.HasContext)
		assert.Equal(t, []int{1}, output.Citations)
		require.Len(t, output.Sources, 1)
		assert.Equal(t, "Geography", output.Sources[0].Title)
		assert.Equal(t, "kb://documents/doc-1", output.Sources[0].URI)

		assert.Equal(t, "What is the capital?", query.lastAsk.Query)
		assert.Equal(t, 3, query.lastAsk.TopK)
		assert.True(t, query.lastAsk.UseRerank)
		assert.Equal(t, domain.FullScope(), query.lastAsk.Scope)
	})

	t.Run("narrows scope to request", func(t *testing.T) {
		query := &mockQueryService{response: &driving.AskResponse{}}
		server := newTestServer(t, &Ports{Query: query, Scope: domain.FullScope()})

		_, _, err := server.handleAsk(ctx, nil, AskInput{Question: "q", Scope: []string{"public"}})

		require.NoError(t, err)
		assert.Equal(t, domain.Scope{domain.PermissionPublic}, query.lastAsk.Scope)
	})

	t.Run("rejects levels outside the grant", func(t *testing.T) {
		query := &mockQueryService{response: &driving.AskResponse{}}
		server := newTestServer(t, &Ports{Query: query, Scope: domain.Scope{domain.PermissionPublic}})

		_, _, err := server.handleAsk(ctx, nil, AskInput{Question: "q", Scope: []string{"private"}})

		assert.ErrorIs(t, err, domain.ErrPermissionDenied)
		assert.Empty(t, query.lastAsk.Query)
	})

	t.Run("propagates service errors", func(t *testing.T) {
		query := &mockQueryService{err: domain.ErrGeneration}
		server := newTestServer(t, &Ports{Query: query, Scope: domain.FullScope()})

		_, _, err := server.handleAsk(ctx, nil, AskInput{Question: "q"})

		assert.ErrorIs(t, err, domain.ErrGeneration)
	})
}

func TestServer_handleSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("returns ranked passages", func(t *testing.T) {
		rerank := 0.99
		query := &mockQueryService{
			sources: []domain.Source{
				{DocumentID: "doc-1", ChunkID: "c1", Content: "first", Score: 0.7, RerankScore: &rerank},
				{DocumentID: "doc-2", ChunkID: "c2", Content: "second", Score: 0.6},
			},
		}
		server := newTestServer(t, &Ports{Query: query, Scope: domain.FullScope()})

		threshold := 0.4
		_, output, err := server.handleSearch(ctx, nil, SearchInput{
			Query:     "test",
			TopK:      5,
			Threshold: &threshold,
		})

		require.NoError(t, err)
		assert.Equal(t, 2, output.Count)
		assert.Equal(t, 0.99, output.Results[0].Score)
		assert.Equal(t, 0.6, output.Results[1].Score)
		assert.Equal(t, "test", query.lastQuery)
		assert.Equal(t, 5, query.lastSearch.TopK)
		assert.Equal(t, 0.4, query.lastSearch.ScoreThreshold)
	})

	t.Run("empty grant passes an empty scope", func(t *testing.T) {
		query := &mockQueryService{err: domain.ErrPermissionDenied}
		server := newTestServer(t, &Ports{Query: query})

		_, _, err := server.handleSearch(ctx, nil, SearchInput{Query: "test"})

		assert.ErrorIs(t, err, domain.ErrPermissionDenied)
		assert.Empty(t, query.lastSearch.Scope)
	})

	t.Run("returns error on search failure", func(t *testing.T) {
		query := &mockQueryService{err: errors.New("search failed")}
		server := newTestServer(t, &Ports{Query: query, Scope: domain.FullScope()})

		_, _, err := server.handleSearch(ctx, nil, SearchInput{Query: "test"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "search failed")
	})
}

func TestServer_handleListDocuments(t *testing.T) {
	ctx := context.Background()

	t.Run("lists documents with default limit", func(t *testing.T) {
		docs := &mockDocumentService{
			documents: []domain.Document{{
				ID:         "doc-1",
				Title:      "Handbook",
				SourceType: domain.SourceTypeMarkdown,
				Permission: domain.PermissionDepartment,
				Status:     domain.StatusReady,
				ChunkCount: 4,
			}},
		}
		server := newTestServer(t, &Ports{Query: &mockQueryService{}, Document: docs})

		_, output, err := server.handleListDocuments(ctx, nil, ListDocumentsInput{Status: "ready"})

		require.NoError(t, err)
		require.Equal(t, 1, output.Count)
		assert.Equal(t, DocumentOutput{
			ID:         "doc-1",
			Title:      "Handbook",
			Type:       "md",
			Permission: "department",
			Status:     "ready",
			Chunks:     4,
			URI:        "kb://documents/doc-1",
		}, output.Documents[0])
		assert.Equal(t, defaultListLimit, docs.lastFilter.Limit)
		assert.Equal(t, domain.StatusReady, docs.lastFilter.Status)
	})

	t.Run("returns error on list failure", func(t *testing.T) {
		docs := &mockDocumentService{err: errors.New("store down")}
		server := newTestServer(t, &Ports{Query: &mockQueryService{}, Document: docs})

		_, _, err := server.handleListDocuments(ctx, nil, ListDocumentsInput{})

		require.Error(t, err)
	})
}

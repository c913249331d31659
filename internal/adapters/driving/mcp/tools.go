package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

// defaultListLimit caps list_documents when no limit is given.
const defaultListLimit = 50

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question       string   `json:"question" jsonschema:"the question to answer from the knowledge base"`
	ConversationID string   `json:"conversation_id,omitempty" jsonschema:"continue an earlier conversation"`
	TopK           int      `json:"top_k,omitempty" jsonschema:"maximum number of sources (default from settings)"`
	Rerank         bool     `json:"rerank,omitempty" jsonschema:"re-score candidates before answering"`
	Scope          []string `json:"scope,omitempty" jsonschema:"permission levels to read (public, department, private)"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer         string         `json:"answer"`
	ConversationID string         `json:"conversation_id"`
	HasContext     bool           `json:"has_context"`
	Citations      []int          `json:"citations"`
	Sources        []SourceOutput `json:"sources"`
}

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query     string   `json:"query" jsonschema:"the text to find passages for"`
	TopK      int      `json:"top_k,omitempty" jsonschema:"maximum number of passages (default from settings)"`
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"minimum cosine similarity"`
	Rerank    bool     `json:"rerank,omitempty" jsonschema:"re-score candidates"`
	Scope     []string `json:"scope,omitempty" jsonschema:"permission levels to read (public, department, private)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SourceOutput `json:"results"`
	Count   int            `json:"count"`
}

// SourceOutput is one cited or retrieved passage.
type SourceOutput struct {
	DocumentID string  `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Title      string  `json:"title,omitempty"`
	URI        string  `json:"uri"`
	Score      float64 `json:"score"`
	Content    string  `json:"content,omitempty"`
}

// ListDocumentsInput is the input schema for the list_documents tool.
type ListDocumentsInput struct {
	Status string `json:"status,omitempty" jsonschema:"only documents in this state (pending, processing, ready, failed)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of documents (default 50)"`
	Offset int    `json:"offset,omitempty" jsonschema:"number of documents to skip"`
}

// ListDocumentsOutput is the output schema for the list_documents tool.
type ListDocumentsOutput struct {
	Documents []DocumentOutput `json:"documents"`
	Count     int              `json:"count"`
}

// DocumentOutput summarises a document.
type DocumentOutput struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Type       string `json:"type"`
	Permission string `json:"permission"`
	Status     string `json:"status"`
	Chunks     int    `json:"chunks"`
	URI        string `json:"uri"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question from the knowledge base with numbered citations",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Retrieve the passages most similar to a query without generating an answer",
	}, s.handleSearch)

	if s.ports.Document != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "list_documents",
			Description: "List uploaded documents and their ingestion state",
		}, s.handleListDocuments)
	}
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	scope, err := s.ports.resolveScope(input.Scope)
	if err != nil {
		return nil, AskOutput{}, err
	}

	resp, err := s.ports.Query.Ask(ctx, driving.AskRequest{
		Query:          input.Question,
		ConversationID: input.ConversationID,
		TopK:           input.TopK,
		UseRerank:      input.Rerank,
		Scope:          scope,
	})
	if err != nil {
		return nil, AskOutput{}, err
	}

	return nil, AskOutput{
		Answer:         resp.Answer,
		ConversationID: resp.ConversationID,
		HasContext:     resp.HasContext,
		Citations:      resp.Citations,
		Sources:        toSourceOutputs(resp.Sources),
	}, nil
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	scope, err := s.ports.resolveScope(input.Scope)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	opts := domain.RetrieveOptions{
		Scope:     scope,
		TopK:      input.TopK,
		UseRerank: input.Rerank,
	}
	if input.Threshold != nil {
		opts.ScoreThreshold = *input.Threshold
	}

	sources, err := s.ports.Query.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	return nil, SearchOutput{
		Results: toSourceOutputs(sources),
		Count:   len(sources),
	}, nil
}

// handleListDocuments handles the list_documents tool invocation.
func (s *Server) handleListDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	filter := domain.DocumentFilter{
		Status: domain.DocumentStatus(input.Status),
		Limit:  input.Limit,
		Offset: input.Offset,
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}

	docs, err := s.ports.Document.List(ctx, filter)
	if err != nil {
		return nil, ListDocumentsOutput{}, err
	}

	output := ListDocumentsOutput{
		Documents: make([]DocumentOutput, len(docs)),
		Count:     len(docs),
	}
	for i := range docs {
		output.Documents[i] = toDocumentOutput(&docs[i])
	}
	return nil, output, nil
}

func toSourceOutputs(sources []domain.Source) []SourceOutput {
	out := make([]SourceOutput, len(sources))
	for i, src := range sources {
		out[i] = SourceOutput{
			DocumentID: src.DocumentID,
			ChunkID:    src.ChunkID,
			Title:      src.DocumentTitle,
			URI:        documentURI(src.DocumentID),
			Score:      src.RankScore(),
			Content:    src.Content,
		}
	}
	return out
}

func toDocumentOutput(doc *domain.Document) DocumentOutput {
	return DocumentOutput{
		ID:         doc.ID,
		Title:      doc.Title,
		Type:       doc.SourceType.String(),
		Permission: doc.Permission.String(),
		Status:     doc.Status.String(),
		Chunks:     doc.ChunkCount,
		URI:        documentURI(doc.ID),
	}
}

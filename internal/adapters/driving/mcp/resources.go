package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/kb/internal/core/domain"
)

// uriScheme is the URI scheme for knowledge base resources.
const uriScheme = "kb://"

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	if s.ports.Document != nil {
		s.server.AddResource(&mcp.Resource{
			URI:         uriScheme + "documents",
			Name:        "documents",
			Description: "Documents readable in this session",
			MIMEType:    "application/json",
		}, s.handleDocumentsResource)

		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "documents/{documentId}",
			Name:        "document-content",
			Description: "Normalised text of a specific document",
			MIMEType:    "text/plain",
		}, s.handleDocumentContentResource)
	}

	if s.ports.Conversation != nil {
		s.server.AddResourceTemplate(&mcp.ResourceTemplate{
			URITemplate: uriScheme + "conversations/{conversationId}",
			Name:        "conversation",
			Description: "Messages of a conversation in order",
			MIMEType:    "application/json",
		}, s.handleConversationResource)
	}
}

// handleDocumentsResource lists documents whose level is granted to the session.
func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docs, err := s.ports.Document.List(ctx, domain.DocumentFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	infos := make([]DocumentOutput, 0, len(docs))
	for i := range docs {
		if !s.ports.Scope.Contains(docs[i].Permission) {
			continue
		}
		infos = append(infos, toDocumentOutput(&docs[i]))
	}

	return jsonResource(req.Params.URI, infos)
}

// handleDocumentContentResource returns the content of a specific document.
// Documents outside the session scope are reported as missing.
func (s *Server) handleDocumentContentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docID := extractID(req.Params.URI, "documents/")
	if docID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	doc, err := s.ports.Document.Get(ctx, docID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	if !s.ports.Scope.Contains(doc.Permission) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	content, err := s.ports.Document.GetContent(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("getting document content: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     content,
		}},
	}, nil
}

// conversationMessage is the resource form of a stored message.
type conversationMessage struct {
	Seq       int64          `json:"seq"`
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Sources   []SourceOutput `json:"sources,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// handleConversationResource returns a conversation header and its messages.
func (s *Server) handleConversationResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	convID := extractID(req.Params.URI, "conversations/")
	if convID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	conv, msgs, err := s.ports.Conversation.Get(ctx, convID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}

	out := struct {
		ID        string                `json:"id"`
		Title     string                `json:"title"`
		CreatedAt time.Time             `json:"created_at"`
		UpdatedAt time.Time             `json:"updated_at"`
		Messages  []conversationMessage `json:"messages"`
	}{
		ID:        conv.ID,
		Title:     conv.Title,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
		Messages:  make([]conversationMessage, len(msgs)),
	}
	for i, m := range msgs {
		out.Messages[i] = conversationMessage{
			Seq:       m.Seq,
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		}
		if len(m.Sources) > 0 {
			out.Messages[i].Sources = toSourceOutputs(m.Sources)
		}
	}

	return jsonResource(req.Params.URI, out)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// documentURI returns the resource URI of a document's content.
func documentURI(id string) string {
	return uriScheme + "documents/" + id
}

// extractID extracts the trailing identifier from a URI like kb://documents/{id}.
// Nested paths are rejected.
func extractID(uri, collection string) string {
	prefix := uriScheme + collection
	if !strings.HasPrefix(uri, prefix) {
		return ""
	}
	id := strings.TrimPrefix(uri, prefix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}

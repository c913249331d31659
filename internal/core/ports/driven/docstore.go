package driven

import (
	"context"

	"github.com/custodia-labs/kb/internal/core/domain"
)

// DocumentStore persists documents and chunks.
// Backed by SQLite or memory.
type DocumentStore interface {
	// SaveDocument stores or updates a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// UpdateStatus changes a document's lifecycle state.
	// errMsg is stored for failed documents and cleared otherwise.
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg string) error

	// TransitionStatus moves a document from one state to another in a
	// single atomic step and clears its error. It reports false, without
	// writing, when the document is not currently in from.
	TransitionStatus(ctx context.Context, id string, from, to domain.DocumentStatus) (bool, error)

	// SaveChunks stores chunks for a document.
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error

	// GetDocument retrieves a document by ID, including its raw bytes.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// GetChunks retrieves all chunks for a document ordered by position.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// GetChunk retrieves a specific chunk by ID.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// DeleteChunks removes every chunk of a document.
	DeleteChunks(ctx context.Context, documentID string) error

	// DeleteDocument removes a document and its chunks.
	DeleteDocument(ctx context.Context, id string) error

	// ListDocuments returns documents matching the filter, newest first.
	// Raw bytes and content are not loaded.
	ListDocuments(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error)
}

// ConversationStore persists ordered message history per conversation.
//
// Append assigns the next sequence number (1, 2, ...) atomically so two
// messages never share a number. Appending to an unknown conversation
// creates it. Load returns a consistent prefix ordered by sequence.
type ConversationStore interface {
	// Append stores a message and returns its sequence number.
	Append(ctx context.Context, conversationID string, msg domain.Message) (int64, error)

	// Load returns all messages of a conversation ordered by sequence.
	// An unknown conversation yields an empty slice.
	Load(ctx context.Context, conversationID string) ([]domain.Message, error)

	// Get returns the conversation header.
	Get(ctx context.Context, conversationID string) (*domain.Conversation, error)

	// List returns conversations ordered by last update, newest first.
	List(ctx context.Context, opts domain.ListOptions) ([]domain.Conversation, error)

	// Delete removes a conversation and its messages.
	Delete(ctx context.Context, conversationID string) error
}

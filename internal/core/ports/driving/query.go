package driving

import (
	"context"

	"github.com/custodia-labs/kb/internal/core/domain"
)

// QueryService answers questions from the corpus.
type QueryService interface {
	// Ask retrieves context, generates a cited answer and records the turn.
	Ask(ctx context.Context, req AskRequest) (*AskResponse, error)

	// Search retrieves sources without generating an answer.
	Search(ctx context.Context, query string, opts domain.RetrieveOptions) ([]domain.Source, error)
}

// AskRequest is the query boundary input.
type AskRequest struct {
	// Query is the question text.
	Query string `validate:"required,max=4000"`

	// ConversationID continues a conversation; empty starts a new one.
	ConversationID string `validate:"omitempty,max=128"`

	// TopK is the maximum number of sources; zero uses the default.
	TopK int `validate:"gte=0,lte=100"`

	// ScoreThreshold drops weaker candidates; nil uses the default.
	ScoreThreshold *float64 `validate:"omitempty,gte=-1,lte=2"`

	// UseRerank enables the reranking pass.
	UseRerank bool

	// Scope is the set of readable permission levels; empty denies everything.
	Scope domain.Scope
}

// AskResponse is the query boundary output.
type AskResponse struct {
	Answer         string          `json:"answer"`
	Sources        []domain.Source `json:"sources"`
	Citations      []int           `json:"citations"`
	ConversationID string          `json:"conversation_id"`
	HasContext     bool            `json:"has_context"`
}

// ConversationService exposes conversation history.
type ConversationService interface {
	// List returns conversations, most recently updated first.
	List(ctx context.Context, opts domain.ListOptions) ([]domain.Conversation, error)

	// Get returns a conversation header and its messages.
	Get(ctx context.Context, conversationID string) (*domain.Conversation, []domain.Message, error)

	// Delete removes a conversation.
	Delete(ctx context.Context, conversationID string) error
}

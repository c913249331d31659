package driven

import "context"

// LLMService turns a prompt transcript into answer text. It is optional:
// a nil LLMService leaves search working while Ask reports
// domain.ErrLLMUnavailable.
type LLMService interface {
	// Chat runs one completion over the ordered messages.
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error)

	ModelName() string

	// Ping makes the cheapest request the backend supports.
	Ping(ctx context.Context) error

	Close() error
}

// Roles understood by every backend.
const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one entry of a prompt transcript.
type ChatMessage struct {
	Role    string
	Content string
}

// ChatOptions tunes a single completion. Zero values defer to the backend.
type ChatOptions struct {
	MaxTokens   int
	Temperature float64
	// Stop ends generation at the first matching sequence.
	Stop []string
}

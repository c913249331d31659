package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid returns true if the role is recognised.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// TitleMaxRunes is the length a conversation title is cut to.
const TitleMaxRunes = 50

// Conversation is an ordered chat session.
// It is created implicitly by the first appended message.
type Conversation struct {
	// ID is the caller-visible conversation identifier.
	ID string

	// Title is derived from the first user message.
	Title string

	// MessageCount is the number of stored messages.
	MessageCount int

	// CreatedAt is when the first message was appended.
	CreatedAt time.Time

	// UpdatedAt is when the latest message was appended.
	UpdatedAt time.Time
}

// Message is one turn of a conversation.
type Message struct {
	// Seq is the 1-based position within the conversation.
	// It is assigned by the store and strictly increasing.
	Seq int64

	// Role is the author of the message.
	Role Role

	// Content is the message text.
	Content string

	// Sources are the citations backing an assistant message.
	Sources []Source

	// CreatedAt is when the message was appended.
	CreatedAt time.Time
}

// TitleFromMessage derives a conversation title from the first message.
func TitleFromMessage(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(content) <= TitleMaxRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:TitleMaxRunes]) + "..."
}

// ListOptions pages through a listing.
type ListOptions struct {
	// Limit is the maximum number of items; zero means no limit.
	Limit int

	// Offset is the number of items to skip.
	Offset int
}

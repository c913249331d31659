package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

// Ensure ConversationStore implements the interface.
var _ driven.ConversationStore = (*ConversationStore)(nil)

// ConversationStore is an in-memory implementation of driven.ConversationStore.
type ConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	now           func() time.Time
}

type conversation struct {
	header   domain.Conversation
	messages []domain.Message
}

// NewConversationStore creates a new in-memory conversation store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		conversations: make(map[string]*conversation),
		now:           time.Now,
	}
}

// Append stores a message and returns its sequence number.
func (s *ConversationStore) Append(_ context.Context, conversationID string, msg domain.Message) (int64, error) {
	if conversationID == "" {
		return 0, fmt.Errorf("%w: conversation id is required", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	conv, ok := s.conversations[conversationID]
	if !ok {
		conv = &conversation{header: domain.Conversation{
			ID:        conversationID,
			Title:     domain.TitleFromMessage(msg.Content),
			CreatedAt: now,
		}}
		s.conversations[conversationID] = conv
	}

	msg.Seq = int64(len(conv.messages) + 1)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	msg.Sources = append([]domain.Source(nil), msg.Sources...)
	conv.messages = append(conv.messages, msg)
	conv.header.MessageCount = len(conv.messages)
	conv.header.UpdatedAt = now
	return msg.Seq, nil
}

// Load returns all messages ordered by sequence.
func (s *ConversationStore) Load(_ context.Context, conversationID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return []domain.Message{}, nil
	}
	out := make([]domain.Message, len(conv.messages))
	copy(out, conv.messages)
	return out, nil
}

// Get returns the conversation header.
func (s *ConversationStore) Get(_ context.Context, conversationID string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	header := conv.header
	return &header, nil
}

// List returns conversations ordered by last update, newest first.
func (s *ConversationStore) List(_ context.Context, opts domain.ListOptions) ([]domain.Conversation, error) {
	s.mu.RLock()
	result := make([]domain.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		result = append(result, conv.header)
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

// Delete removes a conversation and its messages.
func (s *ConversationStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return domain.ErrNotFound
	}
	delete(s.conversations, conversationID)
	return nil
}

package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

// Ensure ConversationService implements the interface.
var _ driving.ConversationService = (*ConversationService)(nil)

// ConversationService serialises writes per conversation so that a
// user message and its answer are always adjacent in history.
type ConversationService struct {
	store driven.ConversationStore
	locks *keyedMutex
}

// NewConversationService creates a conversation service.
func NewConversationService(store driven.ConversationStore) *ConversationService {
	return &ConversationService{
		store: store,
		locks: newKeyedMutex(),
	}
}

// History returns a conversation's messages. Unknown conversations have
// no history.
func (s *ConversationService) History(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if conversationID == "" {
		return []domain.Message{}, nil
	}
	msgs, err := s.store.Load(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return msgs, nil
}

// Append adds one message and returns its sequence number.
func (s *ConversationService) Append(ctx context.Context, conversationID string, msg domain.Message) (int64, error) {
	if err := validateConversationID(conversationID); err != nil {
		return 0, err
	}
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	return s.store.Append(ctx, conversationID, msg)
}

// AppendTurn records a user message followed by the assistant reply.
func (s *ConversationService) AppendTurn(ctx context.Context, conversationID string, user, assistant domain.Message) error {
	if err := validateConversationID(conversationID); err != nil {
		return err
	}
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	if _, err := s.store.Append(ctx, conversationID, user); err != nil {
		return fmt.Errorf("append user message: %w", err)
	}
	if _, err := s.store.Append(ctx, conversationID, assistant); err != nil {
		return fmt.Errorf("append assistant message: %w", err)
	}
	return nil
}

// List returns conversations, most recently updated first.
func (s *ConversationService) List(ctx context.Context, opts domain.ListOptions) ([]domain.Conversation, error) {
	return s.store.List(ctx, opts)
}

// Get returns a conversation header and its messages.
func (s *ConversationService) Get(ctx context.Context, conversationID string) (*domain.Conversation, []domain.Message, error) {
	conv, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.store.Load(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("load conversation: %w", err)
	}
	return conv, msgs, nil
}

// Delete removes a conversation.
func (s *ConversationService) Delete(ctx context.Context, conversationID string) error {
	unlock := s.locks.Lock(conversationID)
	defer unlock()

	return s.store.Delete(ctx, conversationID)
}

func validateConversationID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: conversation id is required", domain.ErrInvalidInput)
	}
	return nil
}

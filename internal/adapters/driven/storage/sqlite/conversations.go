package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

// conversationStore implements driven.ConversationStore.
type conversationStore struct {
	store *Store
	now   func() time.Time
}

var _ driven.ConversationStore = (*conversationStore)(nil)

// Append creates the conversation if needed and stores msg under the next
// sequence number. UNIQUE(conversation_id, seq) rejects any duplicate.
func (s *conversationStore) Append(ctx context.Context, conversationID string, msg domain.Message) (int64, error) {
	if conversationID == "" {
		return 0, fmt.Errorf("%w: conversation id is required", domain.ErrInvalidInput)
	}

	sources := msg.Sources
	if sources == nil {
		sources = []domain.Source{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return 0, fmt.Errorf("marshalling sources: %w", err)
	}

	now := s.now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, message_count, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, conversationID, domain.TitleFromMessage(msg.Content), now.UnixNano(), now.UnixNano()); err != nil {
		return 0, fmt.Errorf("creating conversation: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?", conversationID,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("allocating sequence: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, seq, role, content, sources, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, conversationID, seq, string(msg.Role), msg.Content, string(sourcesJSON), msg.CreatedAt.UnixNano()); err != nil {
		return 0, fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE conversations SET message_count = ?, updated_at = ? WHERE id = ?",
		seq, now.UnixNano(), conversationID); err != nil {
		return 0, fmt.Errorf("updating conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return seq, nil
}

// Load returns all messages ordered by sequence.
func (s *conversationStore) Load(ctx context.Context, conversationID string) ([]domain.Message, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT seq, role, content, sources, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY seq
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var (
			msg         domain.Message
			role        string
			sourcesJSON string
			createdAt   int64
		)
		if err := rows.Scan(&msg.Seq, &role, &msg.Content, &sourcesJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Role = domain.Role(role)
		msg.CreatedAt = fromUnix(createdAt)
		if sourcesJSON != "" && sourcesJSON != "[]" && sourcesJSON != jsonNull {
			if err := json.Unmarshal([]byte(sourcesJSON), &msg.Sources); err != nil {
				return nil, fmt.Errorf("unmarshalling sources: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return messages, nil
}

// Get returns the conversation header.
func (s *conversationStore) Get(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, title, message_count, created_at, updated_at
		FROM conversations WHERE id = ?
	`, conversationID)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return conv, err
}

// List returns conversations ordered by last update, newest first.
func (s *conversationStore) List(ctx context.Context, opts domain.ListOptions) ([]domain.Conversation, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, title, message_count, created_at, updated_at
		FROM conversations
		ORDER BY updated_at DESC, id ASC
		LIMIT ? OFFSET ?
	`, limit, max(opts.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	convs := []domain.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return convs, nil
}

// Delete removes a conversation; its messages cascade.
func (s *conversationStore) Delete(ctx context.Context, conversationID string) error {
	res, err := s.store.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", conversationID)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanConversation(row scanner) (*domain.Conversation, error) {
	var (
		conv                 domain.Conversation
		createdAt, updatedAt int64
	)
	if err := row.Scan(&conv.ID, &conv.Title, &conv.MessageCount, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}
	conv.CreatedAt = fromUnix(createdAt)
	conv.UpdatedAt = fromUnix(updatedAt)
	return &conv, nil
}

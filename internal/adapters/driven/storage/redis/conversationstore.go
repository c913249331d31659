// Package redis stores conversation history in Redis.
//
// Each conversation keeps a header hash, a message list and a membership
// entry in a sorted set scored by last update. Appends run as one Lua
// script, so the list length after RPUSH is the message sequence number.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "kb:"

// KEYS: header, messages, index. ARGV: id, title, now, message.
var appendScript = redis.NewScript(`
redis.call('HSETNX', KEYS[1], 'title', ARGV[2])
redis.call('HSETNX', KEYS[1], 'created_at', ARGV[3])
local seq = redis.call('RPUSH', KEYS[2], ARGV[4])
redis.call('HSET', KEYS[1], 'updated_at', ARGV[3], 'message_count', seq)
redis.call('ZADD', KEYS[3], tonumber(ARGV[3]) / 1000, ARGV[1])
return seq
`)

// KEYS: header, messages, index. ARGV: id.
var deleteScript = redis.NewScript(`
local n = redis.call('DEL', KEYS[1], KEYS[2])
redis.call('ZREM', KEYS[3], ARGV[1])
return n
`)

// Config configures the Redis conversation store.
type Config struct {
	// Addr is host:port. Ignored when URL is set.
	Addr string

	// URL is a redis:// connection URL.
	URL string

	// Password authenticates against Addr.
	Password string

	// DB selects the logical database for Addr.
	DB int

	// Prefix namespaces keys. Defaults to DefaultPrefix.
	Prefix string
}

// ConversationStore implements driven.ConversationStore on Redis.
type ConversationStore struct {
	cli    *redis.Client
	prefix string
	now    func() time.Time
}

var _ driven.ConversationStore = (*ConversationStore)(nil)

// storedMessage is the JSON payload of one list entry.
// The sequence number is the entry's list position.
type storedMessage struct {
	Role      domain.Role     `json:"role"`
	Content   string          `json:"content"`
	Sources   []domain.Source `json:"sources,omitempty"`
	CreatedAt int64           `json:"created_at"`
}

// NewConversationStore connects to Redis and verifies the connection.
func NewConversationStore(ctx context.Context, cfg Config) (*ConversationStore, error) {
	var opt *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: redis url: %w", domain.ErrInvalidInput, err)
		}
		opt = parsed
	} else {
		if cfg.Addr == "" {
			return nil, fmt.Errorf("%w: redis address is required", domain.ErrInvalidInput)
		}
		opt = &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	}

	cli := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cli.Ping(pingCtx).Err(); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewConversationStoreWithClient(cli, cfg.Prefix), nil
}

// NewConversationStoreWithClient wraps an existing client.
func NewConversationStoreWithClient(cli *redis.Client, prefix string) *ConversationStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &ConversationStore{cli: cli, prefix: prefix, now: time.Now}
}

func (s *ConversationStore) headerKey(id string) string   { return s.prefix + "conv:" + id }
func (s *ConversationStore) messagesKey(id string) string { return s.prefix + "conv:" + id + ":messages" }
func (s *ConversationStore) indexKey() string             { return s.prefix + "conversations" }

// Append stores a message and returns its sequence number.
func (s *ConversationStore) Append(ctx context.Context, conversationID string, msg domain.Message) (int64, error) {
	if conversationID == "" {
		return 0, fmt.Errorf("%w: conversation id is required", domain.ErrInvalidInput)
	}

	now := s.now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	payload, err := json.Marshal(storedMessage{
		Role:      msg.Role,
		Content:   msg.Content,
		Sources:   msg.Sources,
		CreatedAt: msg.CreatedAt.UnixNano(),
	})
	if err != nil {
		return 0, fmt.Errorf("marshalling message: %w", err)
	}

	keys := []string{s.headerKey(conversationID), s.messagesKey(conversationID), s.indexKey()}
	seq, err := appendScript.Run(ctx, s.cli, keys,
		conversationID,
		domain.TitleFromMessage(msg.Content),
		strconv.FormatInt(now.UnixNano(), 10),
		string(payload),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("appending message: %w", err)
	}
	return seq, nil
}

// Load returns all messages ordered by sequence.
func (s *ConversationStore) Load(ctx context.Context, conversationID string) ([]domain.Message, error) {
	entries, err := s.cli.LRange(ctx, s.messagesKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}

	messages := make([]domain.Message, 0, len(entries))
	for i, entry := range entries {
		var stored storedMessage
		if err := json.Unmarshal([]byte(entry), &stored); err != nil {
			return nil, fmt.Errorf("decoding message %d: %w", i+1, err)
		}
		messages = append(messages, domain.Message{
			Seq:       int64(i + 1),
			Role:      stored.Role,
			Content:   stored.Content,
			Sources:   stored.Sources,
			CreatedAt: time.Unix(0, stored.CreatedAt).UTC(),
		})
	}
	return messages, nil
}

// Get returns the conversation header.
func (s *ConversationStore) Get(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	fields, err := s.cli.HGetAll(ctx, s.headerKey(conversationID)).Result()
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}
	return parseHeader(conversationID, fields)
}

// List returns conversations ordered by last update, newest first.
func (s *ConversationStore) List(ctx context.Context, opts domain.ListOptions) ([]domain.Conversation, error) {
	start := int64(max(opts.Offset, 0))
	stop := int64(-1)
	if opts.Limit > 0 {
		stop = start + int64(opts.Limit) - 1
	}

	ids, err := s.cli.ZRevRange(ctx, s.indexKey(), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	if len(ids) == 0 {
		return []domain.Conversation{}, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	if _, err := s.cli.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, s.headerKey(id))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("loading conversations: %w", err)
	}

	convs := make([]domain.Conversation, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// Deleted between the range and the pipeline.
			continue
		}
		conv, err := parseHeader(ids[i], fields)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *conv)
	}
	return convs, nil
}

// Delete removes a conversation and its messages.
func (s *ConversationStore) Delete(ctx context.Context, conversationID string) error {
	keys := []string{s.headerKey(conversationID), s.messagesKey(conversationID), s.indexKey()}
	n, err := deleteScript.Run(ctx, s.cli, keys, conversationID).Int64()
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Close closes the Redis client.
func (s *ConversationStore) Close() error {
	return s.cli.Close()
}

func parseHeader(id string, fields map[string]string) (*domain.Conversation, error) {
	count, err := strconv.Atoi(fields["message_count"])
	if err != nil {
		return nil, fmt.Errorf("conversation %s: bad message_count: %w", id, err)
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: bad created_at: %w", id, err)
	}
	updatedAt, err := strconv.ParseInt(fields["updated_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: bad updated_at: %w", id, err)
	}
	return &domain.Conversation{
		ID:           id,
		Title:        fields["title"],
		MessageCount: count,
		CreatedAt:    time.Unix(0, createdAt).UTC(),
		UpdatedAt:    time.Unix(0, updatedAt).UTC(),
	}, nil
}

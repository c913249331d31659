package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

// NewConversationStore returns an empty store.
type NewConversationStore func(t *testing.T) driven.ConversationStore

// RunConversationStore exercises the ConversationStore contract.
func RunConversationStore(t *testing.T, newStore NewConversationStore) {
	ctx := context.Background()

	t.Run("AppendCreatesConversation", func(t *testing.T) {
		store := newStore(t)
		seq, err := store.Append(ctx, "conv-1", domain.Message{Role: domain.RoleUser, Content: "Where did the cat sit?"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), seq)

		seq, err = store.Append(ctx, "conv-1", domain.Message{
			Role:    domain.RoleAssistant,
			Content: "On the mat [1].",
			Sources: []domain.Source{{DocumentID: "d1", ChunkID: "d1-c0", Score: 0.8, Position: 0, End: 12}},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), seq)

		conv, err := store.Get(ctx, "conv-1")
		require.NoError(t, err)
		assert.Equal(t, "Where did the cat sit?", conv.Title)
		assert.Equal(t, 2, conv.MessageCount)
		assert.False(t, conv.CreatedAt.IsZero())

		messages, err := store.Load(ctx, "conv-1")
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, domain.RoleUser, messages[0].Role)
		assert.Empty(t, messages[0].Sources)
		require.Len(t, messages[1].Sources, 1)
		assert.Equal(t, "d1-c0", messages[1].Sources[0].ChunkID)
		assert.InDelta(t, 0.8, messages[1].Sources[0].Score, 1e-9)
		assert.False(t, messages[1].CreatedAt.IsZero())
	})

	t.Run("UnknownConversation", func(t *testing.T) {
		store := newStore(t)
		messages, err := store.Load(ctx, "nope")
		require.NoError(t, err)
		assert.Empty(t, messages)

		_, err = store.Get(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, "nope"), domain.ErrNotFound)

		_, err = store.Append(ctx, "", domain.Message{Role: domain.RoleUser, Content: "x"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("ConcurrentAppendsAreGapFree", func(t *testing.T) {
		store := newStore(t)
		const n = 30

		seqs := make([]int64, n)
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				seqs[i], errs[i] = store.Append(ctx, "busy", domain.Message{
					Role: domain.RoleUser, Content: fmt.Sprintf("message %d", i),
				})
			}(i)
		}
		wg.Wait()

		for _, err := range errs {
			require.NoError(t, err)
		}
		sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
		for i, seq := range seqs {
			assert.Equal(t, int64(i+1), seq)
		}

		messages, err := store.Load(ctx, "busy")
		require.NoError(t, err)
		require.Len(t, messages, n)
		for i, msg := range messages {
			assert.Equal(t, int64(i+1), msg.Seq)
		}
	})

	t.Run("ListNewestFirst", func(t *testing.T) {
		store := newStore(t)
		for _, id := range []string{"a", "b", "c"} {
			_, err := store.Append(ctx, id, domain.Message{Role: domain.RoleUser, Content: id})
			require.NoError(t, err)
		}
		_, err := store.Append(ctx, "a", domain.Message{Role: domain.RoleAssistant, Content: "bump"})
		require.NoError(t, err)

		convs, err := store.List(ctx, domain.ListOptions{})
		require.NoError(t, err)
		require.Len(t, convs, 3)
		assert.Equal(t, "a", convs[0].ID)

		page, err := store.List(ctx, domain.ListOptions{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, convs[1].ID, page[0].ID)
	})

	t.Run("DeleteRestartsSequence", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Append(ctx, "x", domain.Message{Role: domain.RoleUser, Content: "one"})
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx, "x"))

		messages, err := store.Load(ctx, "x")
		require.NoError(t, err)
		assert.Empty(t, messages)

		seq, err := store.Append(ctx, "x", domain.Message{Role: domain.RoleUser, Content: "again"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), seq)
	})
}

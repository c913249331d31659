package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kb/internal/core/domain"
)

func TestConversationsList(t *testing.T) {
	mocks, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("conversations", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "conv-1")
	assert.Contains(t, out, "Where did the cat sit?")
	assert.Contains(t, out, "2 messages")
	assert.Equal(t, 20, mocks.conversation.lastOpts.Limit)
}

func TestConversationsList_Pagination(t *testing.T) {
	mocks, cleanup := setupTestServices()
	defer cleanup()

	_, err := executeCommand("conv", "list", "-n", "5", "--offset", "5")
	require.NoError(t, err)
	assert.Equal(t, domain.ListOptions{Limit: 5, Offset: 5}, mocks.conversation.lastOpts)
}

func TestConversationsShow(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("conversations", "show", "conv-1")
	require.NoError(t, err)
	assert.Contains(t, out, "[1] user:\nWhere did the cat sit?")
	assert.Contains(t, out, "[2] assistant:\nOn the mat [1].")
	assert.Contains(t, out, "[1] Test Document 1")
}

func TestConversationsShow_NotFound(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := executeCommand("conversations", "show", "conv-9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestConversationsDelete(t *testing.T) {
	mocks, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("conversations", "delete", "conv-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted conversation: conv-1")
	assert.Equal(t, "conv-1", mocks.conversation.deleted)
}

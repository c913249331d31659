package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kb/internal/core/domain"
)

func TestDocumentsCmd_Alias(t *testing.T) {
	assert.Contains(t, documentsCmd.Aliases, "docs")
}

func TestDocumentsList(t *testing.T) {
	mocks, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("documents", "list", "--status", "ready", "--type", "md", "-n", "5", "--offset", "10")

	require.NoError(t, err)
	assert.Contains(t, out, "doc-1")
	assert.Contains(t, out, "Test Document 2")
	assert.Contains(t, out, "Total: 2 documents")

	assert.Equal(t, domain.StatusReady, mocks.document.lastFilter.Status)
	assert.Equal(t, domain.SourceTypeMarkdown, mocks.document.lastFilter.SourceType)
	assert.Equal(t, 5, mocks.document.lastFilter.Limit)
	assert.Equal(t, 10, mocks.document.lastFilter.Offset)
}

func TestDocumentsList_InvalidFilters(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "status", args: []string{"documents", "list", "--status", "done"}},
		{name: "type", args: []string{"documents", "list", "--type", "exe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, cleanup := setupTestServices()
			defer cleanup()

			_, err := executeCommand(tt.args...)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestDocumentsGet(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("docs", "get", "doc-1")

	require.NoError(t, err)
	assert.Contains(t, out, "Document: doc-1")
	assert.Contains(t, out, "Test Document 1")
	assert.Contains(t, out, "2026-01-15 10:30:00")
	assert.Contains(t, out, "author: Ada")
}

func TestDocumentsGet_ShowsError(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("documents", "get", "doc-2")
	require.NoError(t, err)
	assert.Contains(t, out, "Error:      parse error")
}

func TestDocumentsGet_NotFound(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	_, err := executeCommand("documents", "get", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentsContentAndChunks(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("documents", "content", "doc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "The cat sat. The dog ran.")

	out, err = executeCommand("documents", "chunks", "doc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "#0 [0:20] The cat sat. The dog")
	assert.Contains(t, out, "#1 [15:25] e dog ran.")
	assert.Contains(t, out, "Total: 2 chunks")
}

func TestDocumentsDelete(t *testing.T) {
	mocks, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("documents", "delete", "doc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted document: doc-1")
	assert.Equal(t, "doc-1", mocks.document.deleted)
}

func TestDocumentsDelete_Busy(t *testing.T) {
	mocks, cleanup := setupTestServices()
	defer cleanup()
	mocks.document.err = domain.ErrDocumentBusy

	_, err := executeCommand("documents", "delete", "doc-1")
	assert.ErrorIs(t, err, domain.ErrDocumentBusy)
}

func TestDocumentsRetry(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("documents", "retry", "doc-2")
	require.NoError(t, err)
	assert.Contains(t, out, "Re-queued document: doc-2 (pending)")
}

func TestDocumentsPermission(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("documents", "permission", "doc-1", "Department")
	require.NoError(t, err)
	assert.Contains(t, out, "Document doc-1 is now department")

	_, err = executeCommand("documents", "permission", "doc-1", "secret")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentsStats(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand("documents", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Documents:  2")
	assert.Contains(t, out, "failed=1 ready=1")
	assert.Contains(t, out, "Vectors:    2 (1024 dimensions)")
	assert.Contains(t, out, "4 workers")
}

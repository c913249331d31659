package permission

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kb/internal/core/domain"
)

func TestProcessor_Name(t *testing.T) {
	assert.Equal(t, "permission", New().Name())
}

func TestProcessor_Process_StampsChunks(t *testing.T) {
	doc := &domain.Document{
		ID:         "d1",
		Title:      "Payroll",
		SourceType: domain.SourceTypePDF,
		Permission: domain.PermissionDepartment,
	}
	chunks := []domain.Chunk{{ID: "c1"}, {ID: "c2", Metadata: map[string]any{"start": 10}}}

	out, err := New().Process(context.Background(), doc, chunks)
	require.NoError(t, err)
	require.Len(t, out, 2)

	for _, c := range out {
		assert.Equal(t, domain.PermissionDepartment, c.Permission)
		assert.Equal(t, "Payroll", c.Metadata["title"])
		assert.Equal(t, "pdf", c.Metadata["source_type"])
	}
	assert.Equal(t, 10, out[1].Metadata["start"])
}

func TestProcessor_Process_InvalidPermission(t *testing.T) {
	doc := &domain.Document{ID: "d1", Permission: "everyone"}

	_, err := New().Process(context.Background(), doc, []domain.Chunk{{ID: "c1"}})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DatabaseFile), store.Path())

	var version int
	require.NoError(t, store.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version))
	assert.Equal(t, 3, version)
	require.NoError(t, store.Close())

	// Reopening applies nothing twice.
	store, err = NewStore(dir)
	require.NoError(t, err)
	var count int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 3, count)
	require.NoError(t, store.Close())
}

func TestFloat32Blob(t *testing.T) {
	tests := []struct {
		name string
		in   []float32
	}{
		{"empty", nil},
		{"values", []float32{0, 1, -1.5, 3.25e-7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.in, bytesToFloat32Slice(float32SliceToBytes(tt.in)))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}

func TestStore_PortsShareDatabase(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	index := store.VectorIndex(4)
	assert.Equal(t, 4, index.Dimensions())
	n, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, index.Close())

	_, err = store.ConversationStore().Load(ctx, "none")
	assert.NoError(t, err)
}

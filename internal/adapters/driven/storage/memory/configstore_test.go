package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_LaterSeedsWin(t *testing.T) {
	store := NewConfigStore(
		map[string]any{"llm.provider": "openai", "retrieval.top_k": 5},
		map[string]any{"retrieval.top_k": 8},
	)

	provider, ok := store.Get("llm.provider")
	require.True(t, ok)
	assert.Equal(t, "openai", provider)

	topK, _ := store.Get("retrieval.top_k")
	assert.Equal(t, 8, topK)
	assert.Equal(t, ":memory:", store.Path())
}

func TestConfigStore_SetKeepsType(t *testing.T) {
	store := NewConfigStore()

	tests := []struct {
		key   string
		value any
	}{
		{"llm.model", "llama3.1"},
		{"retrieval.top_k", 12},
		{"retrieval.score_threshold", 0.4},
		{"retrieval.rerank", false},
		{"pipeline.processors", []string{"chunker"}},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			require.NoError(t, store.Set(tt.key, tt.value))
			got, ok := store.Get(tt.key)
			assert.True(t, ok)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestConfigStore_NilIsStored(t *testing.T) {
	store := NewConfigStore()

	_, ok := store.Get("llm.base_url")
	assert.False(t, ok)

	require.NoError(t, store.Set("llm.base_url", nil))
	val, ok := store.Get("llm.base_url")
	assert.True(t, ok)
	assert.Nil(t, val)
}

func TestConfigStore_ConcurrentWriters(t *testing.T) {
	store := NewConfigStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = store.Set("ingestion.workers", n)
		}(i)
		go func() {
			defer wg.Done()
			_, _ = store.Get("ingestion.workers")
		}()
	}
	wg.Wait()

	_, ok := store.Get("ingestion.workers")
	assert.True(t, ok)
}

package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestEmbed_Deterministic(t *testing.T) {
	svc := NewEmbeddingService(256)
	a, err := svc.Embed(context.Background(), "The cat sat on the mat")
	require.NoError(t, err)
	b, err := svc.Embed(context.Background(), "the CAT sat, on the mat!")
	require.NoError(t, err)

	assert.Len(t, a, 256)
	assert.Equal(t, a, b, "case and punctuation are ignored")
}

func TestEmbed_SharedVocabularyScoresHigher(t *testing.T) {
	svc := NewEmbeddingService(0)
	assert.Equal(t, DefaultDimensions, svc.Dimensions())

	vectors, err := svc.EmbedBatch(context.Background(), []string{
		"where did the cat sit",
		"the cat sat on the mat",
		"quarterly revenue grew sharply",
	})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	assert.Greater(t, cosine(vectors[0], vectors[1]), cosine(vectors[0], vectors[2]))
}

func TestEmbed_EmptyText(t *testing.T) {
	svc := NewEmbeddingService(8)
	vec, err := svc.Embed(context.Background(), "  ...  ")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), vec)
}

func TestEmbed_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbeddingService(8).EmbedBatch(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"héllo", "wörld", "42"}, Tokenize("Héllo, WÖRLD -- 42!"))
	assert.Empty(t, Tokenize(""))
}

func TestMetadata(t *testing.T) {
	svc := NewEmbeddingService(4)
	assert.Equal(t, ModelName, svc.ModelName())
	assert.NoError(t, svc.Ping(context.Background()))
	assert.NoError(t, svc.Close())
}

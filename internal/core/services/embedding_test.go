package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kb/internal/core/domain"
)

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestEmbeddingClient_Embed_BatchesAndPreservesOrder(t *testing.T) {
	backend := newBowEmbedder()
	client := NewEmbeddingClient(backend, WithMaxBatchSize(2))

	texts := []string{"alpha", "beta", "gamma", "delta", "epsilon"}
	vectors, err := client.Embed(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	assert.Equal(t, 3, backend.batchCount())
	assert.Equal(t, [][]string{{"alpha", "beta"}, {"gamma", "delta"}, {"epsilon"}}, backend.batches)

	for i, v := range vectors {
		assert.InDelta(t, 1.0, vectorNorm(v), 1e-5, "vector %d is not unit length", i)
	}
	// Each word owns one dimension, so different texts are orthogonal.
	assert.NotEqual(t, vectors[0], vectors[1])
}

func TestEmbeddingClient_Embed_Empty(t *testing.T) {
	backend := newBowEmbedder()
	client := NewEmbeddingClient(backend)

	vectors, err := client.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, backend.batchCount())
}

func TestEmbeddingClient_Embed_Errors(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(b *bowEmbedder)
		opts       []EmbeddingOption
		wantIs     []error
		wantNotIs  []error
		retryable  bool
		wantErrMsg string
	}{
		{
			name:      "backend failure",
			setup:     func(b *bowEmbedder) { b.err = errors.New("connection refused") },
			wantIs:    []error{domain.ErrEmbeddingBackend},
			wantNotIs: []error{domain.ErrMalformedResponse},
			retryable: true,
		},
		{
			name: "count mismatch",
			setup: func(b *bowEmbedder) {
				b.vectors = func(texts []string) [][]float32 {
					return [][]float32{make([]float32, testDims)}
				}
			},
			wantIs: []error{domain.ErrEmbeddingBackend, domain.ErrMalformedResponse},
		},
		{
			name: "wrong dimension",
			setup: func(b *bowEmbedder) {
				b.vectors = func(texts []string) [][]float32 {
					out := make([][]float32, len(texts))
					for i := range out {
						out[i] = []float32{1, 2, 3}
					}
					return out
				}
			},
			wantIs:     []error{domain.ErrDimensionMismatch},
			wantErrMsg: fmt.Sprintf("got 3, want %d", testDims),
		},
		{
			name: "non finite values",
			setup: func(b *bowEmbedder) {
				b.vectors = func(texts []string) [][]float32 {
					out := make([][]float32, len(texts))
					for i := range out {
						out[i] = make([]float32, testDims)
						out[i][0] = float32(math.NaN())
					}
					return out
				}
			},
			wantIs: []error{domain.ErrEmbeddingBackend, domain.ErrMalformedResponse},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newBowEmbedder()
			tt.setup(backend)
			client := NewEmbeddingClient(backend, tt.opts...)

			_, err := client.Embed(context.Background(), []string{"one", "two"})
			require.Error(t, err)
			for _, target := range tt.wantIs {
				assert.ErrorIs(t, err, target)
			}
			for _, target := range tt.wantNotIs {
				assert.NotErrorIs(t, err, target)
			}
			assert.Equal(t, tt.retryable, domain.IsRetryable(err))
			if tt.wantErrMsg != "" {
				assert.Contains(t, err.Error(), tt.wantErrMsg)
			}
		})
	}
}

func TestEmbeddingClient_NoBackend(t *testing.T) {
	client := NewEmbeddingClient(nil)
	_, err := client.Embed(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Empty(t, client.ModelName())
}

func TestEmbeddingClient_ZeroVectorKept(t *testing.T) {
	backend := newBowEmbedder()
	client := NewEmbeddingClient(backend)

	v, err := client.EmbedQuery(context.Background(), "!!!")
	require.NoError(t, err)
	assert.Len(t, v, testDims)
	assert.Zero(t, vectorNorm(v))
}

func TestEmbeddingClient_RateLimitHonoursContext(t *testing.T) {
	backend := newBowEmbedder()
	client := NewEmbeddingClient(backend, WithRateLimit(0.001), WithMaxBatchSize(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled context aborts the limiter wait.
	_, err := client.Embed(ctx, []string{"a", "b"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingBackend)
}

func TestEmbeddingClient_Options(t *testing.T) {
	backend := newBowEmbedder()

	client := NewEmbeddingClient(backend, WithDimensions(8), WithMaxBatchSize(0))
	assert.Equal(t, 8, client.Dimensions())
	assert.Equal(t, DefaultMaxBatchSize, client.batchSize)
	assert.Equal(t, "bag-of-words", client.ModelName())

	client = NewEmbeddingClient(backend)
	assert.Equal(t, testDims, client.Dimensions())
	assert.Nil(t, client.limiter)
}

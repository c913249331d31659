package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
	"github.com/custodia-labs/kb/internal/logger"
)

// DefaultMaxBatchSize is the largest number of texts sent in one backend call.
const DefaultMaxBatchSize = 32

// EmbeddingClient turns texts into unit-length vectors through an
// embedding backend. Large requests are split into batches, and batches
// are paced by an optional rate limiter.
type EmbeddingClient struct {
	backend   driven.EmbeddingService
	dims      int
	batchSize int
	limiter   *rate.Limiter
}

// EmbeddingOption configures an EmbeddingClient.
type EmbeddingOption func(*EmbeddingClient)

// WithMaxBatchSize sets the batch size. Values below 1 are ignored.
func WithMaxBatchSize(n int) EmbeddingOption {
	return func(c *EmbeddingClient) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithDimensions fixes the expected vector size. Defaults to the backend's.
func WithDimensions(n int) EmbeddingOption {
	return func(c *EmbeddingClient) {
		if n > 0 {
			c.dims = n
		}
	}
}

// WithRateLimit allows rps backend calls per second. Zero disables limiting.
func WithRateLimit(rps float64) EmbeddingOption {
	return func(c *EmbeddingClient) {
		if rps > 0 {
			burst := int(math.Ceil(rps))
			c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// NewEmbeddingClient wraps backend.
func NewEmbeddingClient(backend driven.EmbeddingService, opts ...EmbeddingOption) *EmbeddingClient {
	c := &EmbeddingClient{
		backend:   backend,
		batchSize: DefaultMaxBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dims == 0 && backend != nil {
		c.dims = backend.Dimensions()
	}
	return c
}

// Dimensions returns the enforced vector size.
func (c *EmbeddingClient) Dimensions() int {
	return c.dims
}

// ModelName returns the backend model name.
func (c *EmbeddingClient) ModelName() string {
	if c.backend == nil {
		return ""
	}
	return c.backend.ModelName()
}

// Embed returns one L2-normalised vector per text, in input order.
//
// Backend failures wrap domain.ErrEmbeddingBackend. A response with the
// wrong number of vectors additionally wraps domain.ErrMalformedResponse,
// and a vector of the wrong size fails with domain.ErrDimensionMismatch.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.backend == nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingBackend, domain.ErrEmbeddingUnavailable)
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		batch := texts[start:end]

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: rate limiter: %w", domain.ErrEmbeddingBackend, err)
			}
		}

		logger.Debug("Embedding batch %d-%d of %d", start, end, len(texts))
		vectors, err := c.backend.EmbedBatch(ctx, batch)
		if err != nil {
			if errors.Is(err, domain.ErrEmbeddingBackend) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingBackend, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("%w: %w: got %d vectors for %d inputs",
				domain.ErrEmbeddingBackend, domain.ErrMalformedResponse, len(vectors), len(batch))
		}

		for i, vec := range vectors {
			if len(vec) != c.dims {
				return nil, domain.NewDimensionMismatch(len(vec), c.dims)
			}
			unit, err := normalize(vec)
			if err != nil {
				return nil, fmt.Errorf("%w: %w: input %d: %w",
					domain.ErrEmbeddingBackend, domain.ErrMalformedResponse, start+i, err)
			}
			out = append(out, unit)
		}
	}
	return out, nil
}

// EmbedQuery embeds a single text.
func (c *EmbeddingClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

var errNonFinite = errors.New("vector contains NaN or Inf")

// normalize scales v to unit length. The zero vector is returned as is.
func normalize(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errNonFinite
		}
		sum += f * f
	}
	out := make([]float32, len(v))
	if sum == 0 {
		return out, nil
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}

// Package openai embeds text through an OpenAI-compatible /embeddings
// endpoint.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/custodia-labs/kb/internal/adapters/driven/openaicompat"
	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*EmbeddingService)(nil)

const (
	DefaultModel   = "text-embedding-3-small"
	DefaultTimeout = 60 * time.Second

	// DefaultBatchSize stays well under the API's per-request input limit.
	DefaultBatchSize = 256
)

// Config configures an EmbeddingService. Only APIKey is required.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// Dimensions is the expected vector size. Known models fill it in;
	// text-embedding-3-* models are also asked to shorten to it.
	Dimensions int

	BatchSize int
}

// EmbeddingService is an OpenAI-compatible embedding backend.
type EmbeddingService struct {
	client     *openaicompat.Client
	model      string
	dimensions int
	batchSize  int
	shorten    bool
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

// NewEmbeddingService validates cfg and applies defaults.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = domain.EmbeddingDimensions()[cfg.Model]
	}
	if cfg.Dimensions == 0 {
		return nil, fmt.Errorf("openai: dimensions unknown for model %q", cfg.Model)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	return &EmbeddingService{
		client:     openaicompat.New(cfg.BaseURL, cfg.APIKey, cfg.Timeout),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		shorten:    strings.HasPrefix(cfg.Model, "text-embedding-3"),
	}, nil
}

// Embed is EmbedBatch for one text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per text in input order, sending at most
// batchSize texts per request. Every failure wraps domain.ErrEmbeddingBackend.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		batch := texts[start:min(start+s.batchSize, len(texts))]
		vectors, err := s.embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("%w: openai: %w", domain.ErrEmbeddingBackend, err)
		}
		for i, v := range vectors {
			if len(v) != s.dimensions {
				return nil, fmt.Errorf("%w: %w: openai: input %d has %d dimensions, want %d",
					domain.ErrEmbeddingBackend, domain.ErrMalformedResponse, start+i, len(v), s.dimensions)
			}
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// embed runs one request. Results carry an index and may arrive in any
// order.
func (s *EmbeddingService) embed(ctx context.Context, texts []string) ([][]float32, error) {
	req := embeddingRequest{Model: s.model, Input: texts}
	if s.shorten {
		req.Dimensions = s.dimensions
	}

	var resp embeddingResponse
	if err := s.client.PostJSON(ctx, "/embeddings", req, &resp); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) || vectors[d.Index] != nil {
			return nil, fmt.Errorf("%w: unexpected index %d", domain.ErrMalformedResponse, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: no embedding for input %d", domain.ErrMalformedResponse, i)
		}
	}
	return vectors, nil
}

func (s *EmbeddingService) Dimensions() int   { return s.dimensions }
func (s *EmbeddingService) ModelName() string { return s.model }

// Ping checks the key against /models.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return fmt.Errorf("openai: ping: %w", err)
	}
	return nil
}

func (s *EmbeddingService) Close() error {
	s.client.Close()
	return nil
}

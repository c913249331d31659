// Package tei provides a cross-encoder reranker backed by a Text
// Embeddings Inference server's /rerank endpoint.
package tei

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

// Ensure Reranker implements the interface.
var _ driven.Reranker = (*Reranker)(nil)

// DefaultTimeout bounds one rerank request.
const DefaultTimeout = 30 * time.Second

// Reranker scores query/passage pairs with a remote cross-encoder.
type Reranker struct {
	client  *http.Client
	baseURL string
}

type rerankRequest struct {
	Query    string   `json:"query"`
	Texts    []string `json:"texts"`
	Truncate bool     `json:"truncate"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// New creates a reranker for the server at baseURL.
func New(baseURL string, timeout time.Duration) (*Reranker, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("tei: base URL is required")
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Reranker{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// Name identifies the reranker in logs.
func (r *Reranker) Name() string {
	return "tei"
}

// Rerank returns one score per document, in input order.
func (r *Reranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return []float64{}, nil
	}

	body, err := json.Marshal(rerankRequest{Query: query, Texts: documents, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tei: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tei: status %d: %s", resp.StatusCode, string(msg))
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("%w: tei: decode response: %w", domain.ErrMalformedResponse, err)
	}

	scores := make([]float64, len(documents))
	seen := make([]bool, len(documents))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(documents) || seen[res.Index] {
			return nil, fmt.Errorf("%w: tei: unexpected index %d", domain.ErrMalformedResponse, res.Index)
		}
		seen[res.Index] = true
		scores[res.Index] = res.Score
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("%w: tei: no score for document %d", domain.ErrMalformedResponse, i)
		}
	}
	return scores, nil
}

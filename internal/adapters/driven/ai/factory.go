// Package ai builds embedding, LLM, reranker and token counting adapters
// from settings.
package ai

import (
	"fmt"

	"github.com/custodia-labs/kb/internal/adapters/driven/embedding/hashing"
	ollamaembed "github.com/custodia-labs/kb/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/kb/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/kb/internal/adapters/driven/llm/langchain"
	openaillm "github.com/custodia-labs/kb/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/kb/internal/adapters/driven/rerank/lexical"
	"github.com/custodia-labs/kb/internal/adapters/driven/rerank/tei"
	"github.com/custodia-labs/kb/internal/adapters/driven/tokens"
	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

// Reranker providers.
const (
	RerankLexical = "lexical"
	RerankTEI     = "tei"
	RerankNone    = "none"
)

// Services holds the AI adapters built from settings.
type Services struct {
	Embedding    driven.EmbeddingService
	LLM          driven.LLMService
	Reranker     driven.Reranker
	TokenCounter driven.TokenCounter

	// Warnings lists optional services that could not be built.
	Warnings []string
}

// Close releases all resources held by the services.
func (s *Services) Close() {
	if s.Embedding != nil {
		_ = s.Embedding.Close()
	}
	if s.LLM != nil {
		_ = s.LLM.Close()
	}
}

// Build creates every AI adapter named by settings. The embedding service
// is required; a missing LLM, reranker or token counter is reported in
// Warnings and left nil.
func Build(settings *domain.Settings) (*Services, error) {
	embedding, err := CreateEmbeddingService(&settings.Embedding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	if embedding == nil {
		return nil, fmt.Errorf("%w: provider %q is not configured",
			domain.ErrEmbeddingUnavailable, settings.Embedding.Provider)
	}

	out := &Services{Embedding: embedding}

	llm, err := CreateLLMService(&settings.LLM)
	switch {
	case err != nil:
		out.Warnings = append(out.Warnings, fmt.Sprintf("llm: %v", err))
	case llm == nil:
		out.Warnings = append(out.Warnings, fmt.Sprintf("llm: provider %q is not configured", settings.LLM.Provider))
	default:
		out.LLM = llm
	}

	reranker, err := CreateReranker(&settings.Rerank)
	if err != nil {
		out.Warnings = append(out.Warnings, fmt.Sprintf("reranker: %v", err))
	}
	out.Reranker = reranker

	counter, err := tokens.New(settings.Synthesis.Encoding)
	if err != nil {
		out.Warnings = append(out.Warnings, fmt.Sprintf("token counter: %v", err))
	} else {
		out.TokenCounter = counter
	}

	return out, nil
}

// CreateEmbeddingService creates the embedding service named by settings.
// Returns nil if the provider is not configured.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderHashing:
		return hashing.NewEmbeddingService(settings.Dimensions), nil

	case domain.AIProviderOllama:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Timeout:    settings.Timeout,
			Dimensions: settings.Dimensions,
		}), nil

	case domain.AIProviderOpenAI:
		svc, err := openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Timeout:    settings.Timeout,
			Dimensions: settings.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		return svc, nil

	case domain.AIProviderAnthropic:
		return nil, fmt.Errorf("anthropic does not support embeddings, use ollama, openai or hashing")

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", settings.Provider)
	}
}

// CreateLLMService creates the LLM service named by settings.
// Returns nil if the provider is not configured.
func CreateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderOpenAI:
		svc, err := openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
			Timeout: settings.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return svc, nil

	case domain.AIProviderOllama, domain.AIProviderAnthropic:
		svc, err := langchain.New(langchain.Config{
			Provider: settings.Provider,
			Model:    settings.Model,
			BaseURL:  settings.BaseURL,
			APIKey:   settings.APIKey,
			Timeout:  settings.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return svc, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", settings.Provider)
	}
}

// CreateReranker creates the reranker named by settings.
// An empty or "none" provider returns nil.
func CreateReranker(settings *domain.RerankSettings) (driven.Reranker, error) {
	if settings == nil {
		return nil, nil
	}

	switch settings.Provider {
	case "", RerankNone:
		return nil, nil
	case RerankLexical:
		return lexical.New(), nil
	case RerankTEI:
		r, err := tei.New(settings.BaseURL, 0)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("unsupported reranker: %s", settings.Provider)
	}
}

package driven

import "github.com/custodia-labs/kb/internal/core/domain"

// AIConfigValidator checks provider settings before they are saved by
// building a client from them and pinging it.
type AIConfigValidator interface {
	ValidateEmbedding(config *domain.EmbeddingSettings) error
	ValidateLLM(config *domain.LLMSettings) error
}

package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/kb/internal/adapters/driven/embedding/hashing"
	"github.com/custodia-labs/kb/internal/core/domain"
)

func TestServices_CloseNil(t *testing.T) {
	(&Services{}).Close()
}

func TestCreateEmbeddingService(t *testing.T) {
	tests := []struct {
		name        string
		settings    *domain.EmbeddingSettings
		wantNil     bool
		wantModel   string
		wantDims    int
		errContains string
	}{
		{name: "nil settings", settings: nil, wantNil: true},
		{name: "unconfigured", settings: &domain.EmbeddingSettings{}, wantNil: true},
		{
			name:      "hashing",
			settings:  &domain.EmbeddingSettings{Provider: domain.AIProviderHashing, Dimensions: 256},
			wantModel: hashing.ModelName,
			wantDims:  256,
		},
		{
			name: "ollama",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOllama, Model: "nomic-embed-text", Dimensions: 768,
			},
			wantModel: "nomic-embed-text",
			wantDims:  768,
		},
		{
			name: "openai",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOpenAI, APIKey: "k", Model: "text-embedding-3-small", Dimensions: 1536,
			},
			wantModel: "text-embedding-3-small",
			wantDims:  1536,
		},
		{
			name:     "openai without key is unconfigured",
			settings: &domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI, Dimensions: 1536},
			wantNil:  true,
		},
		{
			name:     "anthropic is never an embedding provider",
			settings: &domain.EmbeddingSettings{Provider: domain.AIProviderAnthropic, APIKey: "k", Dimensions: 8},
			wantNil:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateEmbeddingService(tt.settings)
			if tt.errContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, svc)
				return
			}
			require.NotNil(t, svc)
			defer svc.Close()
			assert.Equal(t, tt.wantModel, svc.ModelName())
			assert.Equal(t, tt.wantDims, svc.Dimensions())
		})
	}
}

func TestCreateLLMService(t *testing.T) {
	tests := []struct {
		name      string
		settings  *domain.LLMSettings
		wantNil   bool
		wantModel string
	}{
		{name: "nil settings", settings: nil, wantNil: true},
		{name: "unconfigured", settings: &domain.LLMSettings{}, wantNil: true},
		{
			name:      "openai",
			settings:  &domain.LLMSettings{Provider: domain.AIProviderOpenAI, APIKey: "k", Model: "gpt-4o-mini"},
			wantModel: "gpt-4o-mini",
		},
		{
			name:      "ollama through langchain",
			settings:  &domain.LLMSettings{Provider: domain.AIProviderOllama, Model: "llama3.2"},
			wantModel: "llama3.2",
		},
		{
			name:      "anthropic through langchain",
			settings:  &domain.LLMSettings{Provider: domain.AIProviderAnthropic, APIKey: "k"},
			wantModel: domain.DefaultLLMModels()[domain.AIProviderAnthropic],
		},
		{
			name:     "anthropic without key",
			settings: &domain.LLMSettings{Provider: domain.AIProviderAnthropic},
			wantNil:  true,
		},
		{
			name:     "hashing cannot generate",
			settings: &domain.LLMSettings{Provider: domain.AIProviderHashing},
			wantNil:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateLLMService(tt.settings)
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, svc)
				return
			}
			require.NotNil(t, svc)
			defer svc.Close()
			assert.Equal(t, tt.wantModel, svc.ModelName())
		})
	}
}

func TestCreateReranker(t *testing.T) {
	tests := []struct {
		name     string
		settings *domain.RerankSettings
		wantName string
		wantErr  bool
	}{
		{name: "nil", settings: nil},
		{name: "empty", settings: &domain.RerankSettings{}},
		{name: "none", settings: &domain.RerankSettings{Provider: RerankNone}},
		{name: "lexical", settings: &domain.RerankSettings{Provider: RerankLexical}, wantName: "lexical"},
		{name: "tei", settings: &domain.RerankSettings{Provider: RerankTEI, BaseURL: "http://localhost:8081"}, wantName: "tei"},
		{name: "tei without url", settings: &domain.RerankSettings{Provider: RerankTEI}, wantErr: true},
		{name: "unknown", settings: &domain.RerankSettings{Provider: "magic"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := CreateReranker(tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, r)
				return
			}
			require.NoError(t, err)
			if tt.wantName == "" {
				assert.Nil(t, r)
				return
			}
			require.NotNil(t, r)
			assert.Equal(t, tt.wantName, r.Name())
		})
	}
}

func TestBuild(t *testing.T) {
	t.Run("defaults build offline", func(t *testing.T) {
		settings := domain.DefaultSettings()
		settings.Synthesis.Encoding = "no-such-encoding"

		services, err := Build(&settings)
		require.NoError(t, err)
		defer services.Close()

		assert.Equal(t, hashing.ModelName, services.Embedding.ModelName())
		assert.NotNil(t, services.LLM)
		require.NotNil(t, services.Reranker)
		assert.Equal(t, "lexical", services.Reranker.Name())
		assert.Nil(t, services.TokenCounter)
		require.Len(t, services.Warnings, 1)
		assert.Contains(t, services.Warnings[0], "token counter")
	})

	t.Run("missing embedding is fatal", func(t *testing.T) {
		settings := domain.DefaultSettings()
		settings.Embedding.Provider = domain.AIProviderOpenAI
		settings.Embedding.APIKey = ""

		_, err := Build(&settings)
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	})

	t.Run("missing llm is a warning", func(t *testing.T) {
		settings := domain.DefaultSettings()
		settings.LLM.Provider = domain.AIProviderOpenAI
		settings.LLM.APIKey = ""
		settings.Rerank.Provider = RerankNone
		settings.Synthesis.Encoding = "no-such-encoding"

		services, err := Build(&settings)
		require.NoError(t, err)
		assert.Nil(t, services.LLM)
		assert.Nil(t, services.Reranker)
		assert.Len(t, services.Warnings, 2)
	})
}

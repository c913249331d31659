package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API or any compatible endpoint.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderHashing is the offline feature-hashing embedder.
	AIProviderHashing AIProvider = "hashing"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic, AIProviderHashing:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama || p == AIProviderHashing
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	case AIProviderHashing:
		return "Feature hashing (offline)"
	default:
		return unknownDescription
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions is the vector size every embedding must have.
	Dimensions int

	// BatchSize is the maximum number of texts per backend call.
	BatchSize int

	// RequestsPerSecond limits backend calls; zero disables limiting.
	RequestsPerSecond float64

	// Timeout bounds a single backend call.
	Timeout time.Duration
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() || e.Provider == AIProviderAnthropic {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return e.Dimensions > 0
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is the API key (for OpenAI/Anthropic).
	APIKey string

	// Temperature is the sampling temperature.
	Temperature float64

	// MaxTokens bounds the generated answer.
	MaxTokens int

	// Timeout bounds a single generation call.
	Timeout time.Duration
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() || l.Provider == AIProviderHashing {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// RerankSettings holds reranker configuration.
type RerankSettings struct {
	// Provider is "lexical", "tei" or empty for none.
	Provider string

	// BaseURL is the cross-encoder endpoint (for tei).
	BaseURL string

	// Factor multiplies top_k to size the candidate set.
	Factor int
}

// RetrievalSettings holds retrieval defaults.
type RetrievalSettings struct {
	TopK              int
	ScoreThreshold    float64
	DedupOverlapRatio float64
}

// ChunkingSettings holds chunker configuration in runes.
type ChunkingSettings struct {
	Size      int
	Overlap   int
	Tolerance float64
}

// SynthesisSettings bounds the generation prompt.
type SynthesisSettings struct {
	MaxPromptTokens    int
	MaxHistoryMessages int
	Encoding           string
}

// IngestionSettings configures the worker pool.
type IngestionSettings struct {
	Workers     int
	QueueSize   int
	MaxFileSize int64
}

// StorageBackend names a persistence implementation.
type StorageBackend string

// Storage backends.
const (
	StorageMemory   StorageBackend = "memory"
	StorageSQLite   StorageBackend = "sqlite"
	StoragePostgres StorageBackend = "postgres"
	StorageRedis    StorageBackend = "redis"
)

// StorageSettings selects where documents, vectors and conversations live.
type StorageSettings struct {
	// Backend stores documents and chunks (memory or sqlite).
	Backend StorageBackend

	// Path is the data directory for sqlite.
	Path string

	// VectorBackend stores embeddings (memory, sqlite or postgres).
	VectorBackend StorageBackend

	// PostgresDSN is the pgvector connection string.
	PostgresDSN string

	// ConversationBackend stores chat history (memory, sqlite or redis).
	ConversationBackend StorageBackend

	// RedisAddr is the redis address for conversations.
	RedisAddr string
}

// ServerSettings configures the HTTP boundary.
type ServerSettings struct {
	Addr string
}

// Settings holds all application settings.
type Settings struct {
	Embedding EmbeddingSettings
	LLM       LLMSettings
	Rerank    RerankSettings
	Retrieval RetrievalSettings
	Chunking  ChunkingSettings
	Synthesis SynthesisSettings
	Ingestion IngestionSettings
	Storage   StorageSettings
	Server    ServerSettings
}

// DefaultSettings returns settings that work without any external service.
func DefaultSettings() Settings {
	return Settings{
		Embedding: EmbeddingSettings{
			Provider:   AIProviderHashing,
			Dimensions: 1024,
			BatchSize:  32,
			Timeout:    60 * time.Second,
		},
		LLM: LLMSettings{
			Provider:    AIProviderOllama,
			Model:       "llama3.2",
			Temperature: 0.7,
			MaxTokens:   2048,
			Timeout:     120 * time.Second,
		},
		Rerank: RerankSettings{
			Provider: "lexical",
			Factor:   4,
		},
		Retrieval: RetrievalSettings{
			TopK:              10,
			ScoreThreshold:    0.5,
			DedupOverlapRatio: 0.5,
		},
		Chunking: ChunkingSettings{
			Size:      512,
			Overlap:   100,
			Tolerance: 0.2,
		},
		Synthesis: SynthesisSettings{
			MaxPromptTokens:    6000,
			MaxHistoryMessages: 10,
			Encoding:           "cl100k_base",
		},
		Ingestion: IngestionSettings{
			Workers:     4,
			QueueSize:   100,
			MaxFileSize: 100 << 20,
		},
		Storage: StorageSettings{
			Backend:             StorageSQLite,
			VectorBackend:       StorageSQLite,
			ConversationBackend: StorageSQLite,
			RedisAddr:           "localhost:6379",
		},
		Server: ServerSettings{
			Addr: ":8080",
		},
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:  "nomic-embed-text",
		AIProviderOpenAI:  "text-embedding-3-small",
		AIProviderHashing: "hashing",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		"bge-m3":            1024,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}

// PipelineConfig holds post-processor pipeline configuration.
// Uses generic map-based config so new processors can be added
// without modifying this struct.
type PipelineConfig struct {
	// Processors is the ordered list of processor names to run.
	Processors []string

	// ProcessorConfigs holds per-processor configuration as generic maps.
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns config for a specific processor, or nil if not set.
func (c *PipelineConfig) GetProcessorConfig(name string) map[string]any {
	if c.ProcessorConfigs == nil {
		return nil
	}
	return c.ProcessorConfigs[name]
}

// PipelineConfigFor derives the post-processor pipeline from chunking settings.
func PipelineConfigFor(c ChunkingSettings) PipelineConfig {
	return PipelineConfig{
		Processors: []string{"chunker", "permission"},
		ProcessorConfigs: map[string]map[string]any{
			"chunker": {
				"chunk_size":         c.Size,
				"overlap":            c.Overlap,
				"boundary_tolerance": c.Tolerance,
			},
		},
	}
}

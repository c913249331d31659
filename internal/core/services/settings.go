package services

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// EnvPrefix prefixes environment overrides: embedding.base_url is read
// from KB_EMBEDDING_BASE_URL.
const EnvPrefix = "KB_"

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider    = "embedding.provider"
	keyEmbedModel       = "embedding.model"
	keyEmbedBaseURL     = "embedding.base_url"
	keyEmbedAPIKey      = "embedding.api_key"
	keyEmbedDims        = "embedding.dimensions"
	keyEmbedBatchSize   = "embedding.batch_size"
	keyEmbedRateLimit   = "embedding.rate_limit"
	keyEmbedTimeout     = "embedding.timeout"
	keyLLMProvider      = "llm.provider"
	keyLLMModel         = "llm.model"
	keyLLMBaseURL       = "llm.base_url"
	keyLLMAPIKey        = "llm.api_key"
	keyLLMTemperature   = "llm.temperature"
	keyLLMMaxTokens     = "llm.max_tokens"
	keyLLMTimeout       = "llm.timeout"
	keyRerankProvider   = "rerank.provider"
	keyRerankBaseURL    = "rerank.base_url"
	keyRerankFactor     = "rerank.factor"
	keyTopK             = "retrieval.top_k"
	keyScoreThreshold   = "retrieval.score_threshold"
	keyDedupRatio       = "retrieval.dedup_ratio"
	keyChunkSize        = "chunking.size"
	keyChunkOverlap     = "chunking.overlap"
	keyChunkTolerance   = "chunking.tolerance"
	keyMaxPromptTokens  = "synthesis.max_prompt_tokens"
	keyMaxHistory       = "synthesis.max_history_messages"
	keyEncoding         = "synthesis.encoding"
	keyWorkers          = "ingestion.workers"
	keyQueueSize        = "ingestion.queue_size"
	keyMaxFileSize      = "ingestion.max_file_size"
	keyStorageBackend   = "storage.backend"
	keyStoragePath      = "storage.path"
	keyVectorBackend    = "storage.vector_backend"
	keyPostgresDSN      = "storage.postgres_dsn"
	keyConvBackend      = "storage.conversation_backend"
	keyRedisAddr        = "storage.redis_addr"
	keyServerAddr       = "server.addr"
)

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
	kindDuration
)

// settingKeys lists every recognised key and how its value is parsed.
var settingKeys = map[string]valueKind{
	keyEmbedProvider: kindString, keyEmbedModel: kindString, keyEmbedBaseURL: kindString,
	keyEmbedAPIKey: kindString, keyEmbedDims: kindInt, keyEmbedBatchSize: kindInt,
	keyEmbedRateLimit: kindFloat, keyEmbedTimeout: kindDuration,
	keyLLMProvider: kindString, keyLLMModel: kindString, keyLLMBaseURL: kindString,
	keyLLMAPIKey: kindString, keyLLMTemperature: kindFloat, keyLLMMaxTokens: kindInt,
	keyLLMTimeout: kindDuration,
	keyRerankProvider: kindString, keyRerankBaseURL: kindString, keyRerankFactor: kindInt,
	keyTopK: kindInt, keyScoreThreshold: kindFloat, keyDedupRatio: kindFloat,
	keyChunkSize: kindInt, keyChunkOverlap: kindInt, keyChunkTolerance: kindFloat,
	keyMaxPromptTokens: kindInt, keyMaxHistory: kindInt, keyEncoding: kindString,
	keyWorkers: kindInt, keyQueueSize: kindInt, keyMaxFileSize: kindInt,
	keyStorageBackend: kindString, keyStoragePath: kindString, keyVectorBackend: kindString,
	keyPostgresDSN: kindString, keyConvBackend: kindString, keyRedisAddr: kindString,
	keyServerAddr: kindString,
}

// SettingKeys returns every recognised configuration key, sorted.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingKeys))
	for k := range settingKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// SettingsService resolves settings from, lowest to highest precedence:
// defaults, the config store, a .env file and KB_* environment variables.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	lookupEnv   func(string) (string, bool)
	dotenv      map[string]string
}

// SettingsOption configures a SettingsService.
type SettingsOption func(*SettingsService)

// WithEnvLookup replaces os.LookupEnv.
func WithEnvLookup(fn func(string) (string, bool)) SettingsOption {
	return func(s *SettingsService) {
		s.lookupEnv = fn
	}
}

// WithDotEnv reads overrides from .env files. Missing files are ignored.
func WithDotEnv(paths ...string) SettingsOption {
	return func(s *SettingsService) {
		for _, path := range paths {
			values, err := godotenv.Read(path)
			if err != nil {
				continue
			}
			if s.dotenv == nil {
				s.dotenv = make(map[string]string)
			}
			for k, v := range values {
				s.dotenv[k] = v
			}
		}
	}
}

// NewSettingsService creates a new settings service.
func NewSettingsService(
	configStore driven.ConfigStore,
	aiValidator driven.AIConfigValidator,
	opts ...SettingsOption,
) *SettingsService {
	s := &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		lookupEnv:   os.LookupEnv,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get resolves the current settings.
func (s *SettingsService) Get() (*domain.Settings, error) {
	d := domain.DefaultSettings()
	r := &resolver{s: s}

	settings := &domain.Settings{
		Embedding: domain.EmbeddingSettings{
			Provider:          r.provider(keyEmbedProvider, d.Embedding.Provider),
			Model:             r.str(keyEmbedModel, d.Embedding.Model),
			BaseURL:           r.str(keyEmbedBaseURL, d.Embedding.BaseURL),
			APIKey:            r.str(keyEmbedAPIKey, d.Embedding.APIKey),
			BatchSize:         r.integer(keyEmbedBatchSize, d.Embedding.BatchSize),
			RequestsPerSecond: r.float(keyEmbedRateLimit, d.Embedding.RequestsPerSecond),
			Timeout:           r.duration(keyEmbedTimeout, d.Embedding.Timeout),
		},
		LLM: domain.LLMSettings{
			Provider:    r.provider(keyLLMProvider, d.LLM.Provider),
			Model:       r.str(keyLLMModel, ""),
			BaseURL:     r.str(keyLLMBaseURL, d.LLM.BaseURL),
			APIKey:      r.str(keyLLMAPIKey, d.LLM.APIKey),
			Temperature: r.float(keyLLMTemperature, d.LLM.Temperature),
			MaxTokens:   r.integer(keyLLMMaxTokens, d.LLM.MaxTokens),
			Timeout:     r.duration(keyLLMTimeout, d.LLM.Timeout),
		},
		Rerank: domain.RerankSettings{
			Provider: r.str(keyRerankProvider, d.Rerank.Provider),
			BaseURL:  r.str(keyRerankBaseURL, d.Rerank.BaseURL),
			Factor:   r.integer(keyRerankFactor, d.Rerank.Factor),
		},
		Retrieval: domain.RetrievalSettings{
			TopK:              r.integer(keyTopK, d.Retrieval.TopK),
			ScoreThreshold:    r.float(keyScoreThreshold, d.Retrieval.ScoreThreshold),
			DedupOverlapRatio: r.float(keyDedupRatio, d.Retrieval.DedupOverlapRatio),
		},
		Chunking: domain.ChunkingSettings{
			Size:      r.integer(keyChunkSize, d.Chunking.Size),
			Overlap:   r.integer(keyChunkOverlap, d.Chunking.Overlap),
			Tolerance: r.float(keyChunkTolerance, d.Chunking.Tolerance),
		},
		Synthesis: domain.SynthesisSettings{
			MaxPromptTokens:    r.integer(keyMaxPromptTokens, d.Synthesis.MaxPromptTokens),
			MaxHistoryMessages: r.integer(keyMaxHistory, d.Synthesis.MaxHistoryMessages),
			Encoding:           r.str(keyEncoding, d.Synthesis.Encoding),
		},
		Ingestion: domain.IngestionSettings{
			Workers:     r.integer(keyWorkers, d.Ingestion.Workers),
			QueueSize:   r.integer(keyQueueSize, d.Ingestion.QueueSize),
			MaxFileSize: int64(r.integer(keyMaxFileSize, int(d.Ingestion.MaxFileSize))),
		},
		Storage: domain.StorageSettings{
			Backend:             domain.StorageBackend(r.str(keyStorageBackend, string(d.Storage.Backend))),
			Path:                r.str(keyStoragePath, d.Storage.Path),
			VectorBackend:       domain.StorageBackend(r.str(keyVectorBackend, string(d.Storage.VectorBackend))),
			PostgresDSN:         r.str(keyPostgresDSN, d.Storage.PostgresDSN),
			ConversationBackend: domain.StorageBackend(r.str(keyConvBackend, string(d.Storage.ConversationBackend))),
			RedisAddr:           r.str(keyRedisAddr, d.Storage.RedisAddr),
		},
		Server: domain.ServerSettings{
			Addr: r.str(keyServerAddr, d.Server.Addr),
		},
	}

	// Model and dimensions follow the provider unless set explicitly.
	if settings.Embedding.Model == "" {
		settings.Embedding.Model = domain.DefaultEmbeddingModels()[settings.Embedding.Provider]
	}
	dims := d.Embedding.Dimensions
	if known, ok := domain.EmbeddingDimensions()[settings.Embedding.Model]; ok {
		dims = known
	}
	settings.Embedding.Dimensions = r.integer(keyEmbedDims, dims)

	if settings.LLM.Model == "" {
		settings.LLM.Model = domain.DefaultLLMModels()[settings.LLM.Provider]
	}

	if len(r.errs) > 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidInput, errors.Join(r.errs...))
	}
	return settings, nil
}

// Set persists a single key after parsing value for the key's type.
func (s *SettingsService) Set(key, value string) error {
	kind, ok := settingKeys[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	parsed, err := parseValue(kind, value)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrInvalidInput, key, err)
	}
	if kind == kindDuration {
		parsed = value
	}
	if err := s.configStore.Set(key, parsed); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.Settings {
	return domain.DefaultSettings()
}

// Validate checks the resolved settings for consistency.
//
//nolint:gocyclo // Flat list of independent checks.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	e := settings.Embedding
	check(e.Provider.IsValid() && e.Provider != domain.AIProviderAnthropic,
		"embedding provider %q cannot produce embeddings", e.Provider)
	check(!e.Provider.RequiresAPIKey() || e.APIKey != "", "embedding provider %s requires an API key", e.Provider)
	check(e.Dimensions > 0, "embedding dimensions must be positive")
	check(e.BatchSize > 0, "embedding batch size must be positive")

	l := settings.LLM
	check(l.Provider.IsValid() && l.Provider != domain.AIProviderHashing, "llm provider %q cannot generate text", l.Provider)
	check(!l.Provider.RequiresAPIKey() || l.APIKey != "", "llm provider %s requires an API key", l.Provider)

	rr := settings.Rerank
	check(rr.Provider == "" || rr.Provider == "none" || rr.Provider == "lexical" || rr.Provider == "tei",
		"unknown reranker %q", rr.Provider)
	check(rr.Provider != "tei" || rr.BaseURL != "", "tei reranker requires rerank.base_url")
	check(rr.Factor >= 1, "rerank factor must be at least 1")

	rt := settings.Retrieval
	check(rt.TopK > 0, "top_k must be positive")
	check(rt.ScoreThreshold >= -1 && rt.ScoreThreshold <= 1, "score threshold must be within [-1, 1]")
	check(rt.DedupOverlapRatio > 0 && rt.DedupOverlapRatio <= 1, "dedup ratio must be within (0, 1]")

	c := settings.Chunking
	check(c.Size > 0, "chunk size must be positive")
	check(c.Overlap >= 0 && c.Overlap < c.Size, "chunk overlap must be within [0, size)")
	check(c.Tolerance >= 0 && c.Tolerance < 1, "boundary tolerance must be within [0, 1)")

	check(settings.Synthesis.MaxPromptTokens > 0, "max prompt tokens must be positive")
	check(settings.Ingestion.Workers > 0, "ingestion workers must be positive")

	st := settings.Storage
	check(st.Backend == domain.StorageMemory || st.Backend == domain.StorageSQLite,
		"document storage backend %q unsupported", st.Backend)
	check(st.VectorBackend == domain.StorageMemory || st.VectorBackend == domain.StorageSQLite ||
		st.VectorBackend == domain.StoragePostgres, "vector backend %q unsupported", st.VectorBackend)
	check(st.VectorBackend != domain.StoragePostgres || st.PostgresDSN != "", "postgres vector backend requires storage.postgres_dsn")
	check(st.ConversationBackend == domain.StorageMemory || st.ConversationBackend == domain.StorageSQLite ||
		st.ConversationBackend == domain.StorageRedis, "conversation backend %q unsupported", st.ConversationBackend)
	check(st.ConversationBackend != domain.StorageRedis || st.RedisAddr != "", "redis conversation backend requires storage.redis_addr")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

// GetPipelineConfig returns the post-processor pipeline configuration.
func (s *SettingsService) GetPipelineConfig() (domain.PipelineConfig, error) {
	settings, err := s.Get()
	if err != nil {
		return domain.PipelineConfig{}, err
	}
	return domain.PipelineConfigFor(settings.Chunking), nil
}

// lookup returns the raw value for key and whether it was set anywhere.
func (s *SettingsService) lookup(key string) (any, bool) {
	env := EnvName(key)
	if v, ok := s.lookupEnv(env); ok {
		return v, true
	}
	if v, ok := s.dotenv[env]; ok {
		return v, true
	}
	if s.configStore == nil {
		return nil, false
	}
	return s.configStore.Get(key)
}

// resolver reads typed values and collects parse errors.
type resolver struct {
	s    *SettingsService
	errs []error
}

func (r *resolver) value(key string, kind valueKind) (any, bool) {
	raw, ok := r.s.lookup(key)
	if !ok {
		return nil, false
	}
	str, isString := raw.(string)
	if !isString {
		return raw, true
	}
	if kind != kindString && strings.TrimSpace(str) == "" {
		return nil, false
	}
	v, err := parseValue(kind, str)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: %w", key, err))
		return nil, false
	}
	return v, true
}

func (r *resolver) str(key, def string) string {
	v, ok := r.value(key, kindString)
	if !ok {
		return def
	}
	if s, isString := v.(string); isString && s != "" {
		return s
	}
	return def
}

func (r *resolver) integer(key string, def int) int {
	v, ok := r.value(key, kindInt)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

func (r *resolver) float(key string, def float64) float64 {
	v, ok := r.value(key, kindFloat)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return def
}

func (r *resolver) duration(key string, def time.Duration) time.Duration {
	v, ok := r.value(key, kindDuration)
	if !ok {
		return def
	}
	switch d := v.(type) {
	case time.Duration:
		return d
	case int64:
		return time.Duration(d) * time.Second
	}
	return def
}

func (r *resolver) provider(key string, def domain.AIProvider) domain.AIProvider {
	val := domain.AIProvider(r.str(key, string(def)))
	if !val.IsValid() {
		r.errs = append(r.errs, fmt.Errorf("%s: unknown provider %q", key, val))
		return def
	}
	return val
}

func parseValue(kind valueKind, s string) (any, error) {
	s = strings.TrimSpace(s)
	switch kind {
	case kindInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", s)
		}
		return n, nil
	case kindFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", s)
		}
		return f, nil
	case kindDuration:
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("not a duration: %q", s)
		}
		return d, nil
	default:
		return s, nil
	}
}

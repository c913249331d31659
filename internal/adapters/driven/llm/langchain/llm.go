// Package langchain adapts langchaingo chat models (Ollama and Anthropic)
// to the LLMService port.
package langchain

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
)

var _ driven.LLMService = (*LLMService)(nil)

// DefaultOllamaURL is used when no base URL is configured for Ollama.
const DefaultOllamaURL = "http://localhost:11434"

// Config selects and configures the underlying model.
type Config struct {
	// Provider is ollama or anthropic.
	Provider domain.AIProvider

	// Model is the chat model name.
	Model string

	// BaseURL overrides the provider endpoint.
	BaseURL string

	// APIKey is required for anthropic.
	APIKey string

	// Timeout bounds one generation call. Zero means no extra bound.
	Timeout time.Duration
}

// LLMService answers chat requests through a langchaingo model.
type LLMService struct {
	model     llms.Model
	modelName string
	timeout   time.Duration
}

// New builds the langchaingo model named by cfg.Provider.
func New(cfg Config) (*LLMService, error) {
	if cfg.Model == "" {
		cfg.Model = domain.DefaultLLMModels()[cfg.Provider]
	}

	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case domain.AIProviderOllama:
		url := cfg.BaseURL
		if url == "" {
			url = DefaultOllamaURL
		}
		model, err = ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(url))
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case domain.AIProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic: API key is required")
		}
		opts := []anthropic.Option{anthropic.WithToken(cfg.APIKey), anthropic.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		model, err = anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported langchain provider: %s", cfg.Provider)
	}

	return NewWithModel(model, cfg.Model, cfg.Timeout), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, modelName string, timeout time.Duration) *LLMService {
	return &LLMService{model: model, modelName: modelName, timeout: timeout}
}

// Chat maps the messages onto langchaingo roles and returns the first
// choice. The configured timeout applies per call.
func (s *LLMService) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		content = append(content, llms.TextParts(messageType(msg.Role), msg.Content))
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.model.GenerateContent(ctx, content, callOptions(opts)...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.modelName, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s: no choices returned", domain.ErrMalformedResponse, s.modelName)
	}
	return resp.Choices[0].Content, nil
}

func callOptions(opts driven.ChatOptions) []llms.CallOption {
	var out []llms.CallOption
	if opts.MaxTokens > 0 {
		out = append(out, llms.WithMaxTokens(opts.MaxTokens))
	}
	if opts.Temperature > 0 {
		out = append(out, llms.WithTemperature(opts.Temperature))
	}
	if len(opts.Stop) > 0 {
		out = append(out, llms.WithStopWords(opts.Stop))
	}
	return out
}

func messageType(role string) llms.ChatMessageType {
	switch role {
	case driven.ChatRoleSystem:
		return llms.ChatMessageTypeSystem
	case driven.ChatRoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// ModelName returns the name of the LLM model being used.
func (s *LLMService) ModelName() string {
	return s.modelName
}

// Ping asks the model for a single token.
func (s *LLMService) Ping(ctx context.Context) error {
	_, err := s.model.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, "ping")},
		llms.WithMaxTokens(1))
	if err != nil {
		return fmt.Errorf("%s: ping failed: %w", s.modelName, err)
	}
	return nil
}

// Close is a no-op; langchaingo clients hold no resources.
func (s *LLMService) Close() error {
	return nil
}

// Package app wires settings, storage backends, AI adapters and core
// services into a running knowledge base.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/kb/internal/adapters/driven/ai"
	"github.com/custodia-labs/kb/internal/adapters/driven/config/file"
	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driven"
	"github.com/custodia-labs/kb/internal/core/services"
	"github.com/custodia-labs/kb/internal/logger"
	"github.com/custodia-labs/kb/internal/normalisers"
	"github.com/custodia-labs/kb/internal/postprocessors"
)

// App holds the services built from one set of settings.
type App struct {
	Settings      *domain.Settings
	Ingestion     *services.IngestionService
	Documents     *services.DocumentService
	Query         *services.QueryService
	Conversations *services.ConversationService

	ai      *ai.Services
	stores  *stores
	prompts *file.PromptStore
}

// Option configures New.
type Option func(*options)

type options struct {
	promptDir string
}

// WithPromptDir serves system prompts from dir instead of ~/.kb/prompts.
func WithPromptDir(dir string) Option {
	return func(o *options) {
		o.promptDir = dir
	}
}

// New builds the application. Workers are not running until Start.
func New(ctx context.Context, settings *domain.Settings, opts ...Option) (*App, error) {
	if settings == nil {
		return nil, fmt.Errorf("%w: settings are required", domain.ErrInvalidInput)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	aiServices, err := ai.Build(settings)
	if err != nil {
		return nil, err
	}
	for _, w := range aiServices.Warnings {
		logger.Warn("%s", w)
	}

	st, err := openStores(ctx, &settings.Storage, settings.Embedding.Dimensions)
	if err != nil {
		aiServices.Close()
		return nil, err
	}

	pipeline, err := postprocessors.BuildPipeline(
		postprocessors.NewDefaultRegistry(),
		domain.PipelineConfigFor(settings.Chunking),
	)
	if err != nil {
		_ = st.Close()
		aiServices.Close()
		return nil, fmt.Errorf("building chunking pipeline: %w", err)
	}

	embedder := services.NewEmbeddingClient(aiServices.Embedding,
		services.WithDimensions(settings.Embedding.Dimensions),
		services.WithMaxBatchSize(settings.Embedding.BatchSize),
		services.WithRateLimit(settings.Embedding.RequestsPerSecond),
	)

	ingestion := services.NewIngestionService(
		st.docs, st.index, normalisers.NewDefaultRegistry(), pipeline, embedder,
		services.WithWorkers(settings.Ingestion.Workers),
		services.WithQueueSize(settings.Ingestion.QueueSize),
		services.WithMaxFileSize(settings.Ingestion.MaxFileSize),
	)

	retrieverOpts := []services.RetrieverOption{
		services.WithRerankFactor(settings.Rerank.Factor),
		services.WithDedupOverlapRatio(settings.Retrieval.DedupOverlapRatio),
		services.WithDefaultTopK(settings.Retrieval.TopK),
	}
	if aiServices.Reranker != nil {
		retrieverOpts = append(retrieverOpts, services.WithReranker(aiServices.Reranker))
	}
	retriever := services.NewRetriever(embedder, st.index, st.docs, retrieverOpts...)

	synthesizer := services.NewSynthesizer(aiServices.LLM,
		services.WithTokenCounter(aiServices.TokenCounter),
		services.WithMaxPromptTokens(settings.Synthesis.MaxPromptTokens),
		services.WithMaxHistoryMessages(settings.Synthesis.MaxHistoryMessages),
		services.WithChatOptions(chatOptions(&settings.LLM)),
	)
	prompts, err := file.NewPromptStore(o.promptDir)
	if err != nil {
		logger.Warn("Prompt store unavailable, using built-in prompts: %v", err)
	} else {
		logger.Debug("Prompts read from %s", prompts.Dir())
		synthesizer.SetPromptStore(prompts)
	}

	conversations := services.NewConversationService(st.conversations)

	return &App{
		Settings:      settings,
		Ingestion:     ingestion,
		Documents:     services.NewDocumentService(st.docs, st.index, ingestion, embedder),
		Query:         services.NewQueryService(retriever, synthesizer, conversations, settings.Retrieval),
		Conversations: conversations,
		ai:            aiServices,
		stores:        st,
		prompts:       prompts,
	}, nil
}

// ReloadPrompts makes the next answer re-read the prompt files.
func (a *App) ReloadPrompts() {
	if a.prompts == nil {
		return
	}
	a.prompts.Reload()
	logger.Info("Prompts reloaded from %s", a.prompts.Dir())
}

// Start launches the ingestion workers.
func (a *App) Start(ctx context.Context) {
	a.Ingestion.Start(ctx)
}

// Resume re-queues documents an earlier run left unfinished. Only
// long-running commands call it.
func (a *App) Resume(ctx context.Context) (int, error) {
	n, err := a.Ingestion.Resume(ctx)
	if err != nil {
		return n, fmt.Errorf("resuming ingestion: %w", err)
	}
	return n, nil
}

// Close drains the ingestion queue and releases every backend.
func (a *App) Close() error {
	a.Ingestion.Stop()
	a.ai.Close()
	return a.stores.Close()
}

// Describe summarises the selected backends for startup logging.
func (a *App) Describe() string {
	s := a.Settings
	parts := []string{
		"embedding=" + s.Embedding.Provider.String(),
		"documents=" + string(s.Storage.Backend),
		"vectors=" + string(s.Storage.VectorBackend),
		"conversations=" + string(s.Storage.ConversationBackend),
	}
	if a.ai.LLM != nil {
		parts = append(parts, "llm="+s.LLM.Provider.String())
	}
	if a.ai.Reranker != nil {
		parts = append(parts, "rerank="+s.Rerank.Provider)
	}
	return strings.Join(parts, " ")
}

func chatOptions(s *domain.LLMSettings) driven.ChatOptions {
	return driven.ChatOptions{MaxTokens: s.MaxTokens, Temperature: s.Temperature}
}

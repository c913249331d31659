// Package driven holds the outbound ports of kb: everything the core
// services call into and the adapters under internal/adapters/driven
// implement.
//
// Ingestion needs a NormaliserRegistry, a PostProcessorPipeline, an
// EmbeddingService, a VectorIndex and a DocumentStore. Asking additionally
// uses a ConversationStore and, when configured, an LLMService, a Reranker,
// a TokenCounter and a PromptStore. Each optional port may be nil:
//
//	LLMService    Ask returns domain.ErrLLMUnavailable; Search still works
//	Reranker      hits keep similarity order
//	TokenCounter  budgets fall back to a characters-per-token estimate
//	PromptStore   built-in prompts are used
//
// This package imports only domain.
package driven

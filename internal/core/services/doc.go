// Package services holds kb's use cases.
//
// IngestionService moves an upload from pending to ready or failed on a
// bounded worker pool. QueryService runs retrieval (embed, permission
// filtered search, optional rerank) and hands the hits to the synthesizer,
// which builds a cited answer. DocumentService, ConversationService and
// SettingsService cover the remaining driving ports. Backends are only
// reached through ports/driven.
package services

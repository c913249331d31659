// Package mcp exposes the knowledge base to AI assistants over the
// Model Context Protocol. Assistants can ask grounded questions, run
// retrieval-only searches and read document content.
package mcp

import "errors"

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("mcp: query service is required")

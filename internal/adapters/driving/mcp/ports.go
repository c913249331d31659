package mcp

import (
	"fmt"

	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Query answers questions and runs retrieval.
	Query driving.QueryService

	// Document lists documents and serves their content.
	Document driving.DocumentService

	// Conversation exposes chat history.
	Conversation driving.ConversationService

	// Scope is the set of permission levels granted to the connected assistant.
	// Tool calls may narrow it but never widen it.
	Scope domain.Scope
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Query == nil {
		return ErrMissingQueryService
	}
	if len(p.Scope) > 0 {
		if err := p.Scope.Validate(); err != nil {
			return fmt.Errorf("mcp scope: %w", err)
		}
	}
	return nil
}

// resolveScope narrows the granted scope to the requested levels.
// An empty request uses the full grant.
func (p *Ports) resolveScope(requested []string) (domain.Scope, error) {
	if len(requested) == 0 {
		return p.Scope, nil
	}
	scope, err := domain.ParseScope(requested)
	if err != nil {
		return nil, err
	}
	for _, level := range scope {
		if !p.Scope.Contains(level) {
			return nil, fmt.Errorf("%w: level %q is not granted to this session", domain.ErrPermissionDenied, level)
		}
	}
	return scope, nil
}

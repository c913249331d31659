// Package tui provides the interactive terminal interface for kb: a chat
// view that asks questions with citations and a document browser.
package tui

import (
	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

// Ports aggregates the driving ports used by the TUI.
type Ports struct {
	// Query answers questions. Required.
	Query driving.QueryService

	// Document lists and inspects documents. Required.
	Document driving.DocumentService

	// Ingestion re-queues failed documents. Optional.
	Ingestion driving.IngestionService

	// Scope is the set of permission levels questions may read.
	// Empty means every level.
	Scope domain.Scope
}

// Validate ensures the required ports are set.
func (p *Ports) Validate() error {
	if p == nil {
		return ErrInvalidPorts
	}
	if p.Query == nil {
		return ErrMissingQueryService
	}
	if p.Document == nil {
		return ErrMissingDocumentService
	}
	if len(p.Scope) > 0 {
		if err := p.Scope.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// scope returns the configured scope, defaulting to every level.
func (p *Ports) scope() domain.Scope {
	if len(p.Scope) == 0 {
		return domain.FullScope()
	}
	return p.Scope
}

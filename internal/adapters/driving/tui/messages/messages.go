// Package messages defines Bubbletea message types for the TUI.
package messages

import (
	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

// AnswerReceived carries the response to a question.
type AnswerReceived struct {
	Question string
	Response *driving.AskResponse
	Err      error
}

// ViewChanged is sent when navigating between views.
type ViewChanged struct {
	View ViewType
}

// ViewType identifies which view is currently active.
type ViewType int

const (
	// ViewMenu is the main navigation menu.
	ViewMenu ViewType = iota
	// ViewChat is the question and answer view.
	ViewChat
	// ViewDocuments lists uploaded documents.
	ViewDocuments
	// ViewDocContent shows a document's normalised text.
	ViewDocContent
	// ViewDocDetails shows a document's metadata.
	ViewDocDetails
	// ViewHelp is the keybindings view.
	ViewHelp
)

// String returns the string representation of the view type.
func (v ViewType) String() string {
	switch v {
	case ViewMenu:
		return "menu"
	case ViewChat:
		return "chat"
	case ViewDocuments:
		return "documents"
	case ViewDocContent:
		return "doc_content"
	case ViewDocDetails:
		return "doc_details"
	case ViewHelp:
		return "help"
	default:
		return "unknown"
	}
}

// ErrorOccurred signals that an error happened.
type ErrorOccurred struct {
	Err error
}

// DocumentsLoaded carries the document list.
type DocumentsLoaded struct {
	Documents []domain.Document
	Err       error
}

// DocumentSelected signals a document was chosen for reading. From is
// the view to return to.
type DocumentSelected struct {
	Document domain.Document
	From     ViewType
}

// DocumentContentLoaded carries the normalised text of a document.
type DocumentContentLoaded struct {
	DocumentID string
	Content    string
	Err        error
}

// DocumentDetailsLoaded carries a freshly read document.
type DocumentDetailsLoaded struct {
	Document *domain.Document
	Err      error
}

// DocumentDeleted signals a delete finished.
type DocumentDeleted struct {
	DocumentID string
	Err        error
}

// DocumentRetried signals a document was re-queued for ingestion.
type DocumentRetried struct {
	DocumentID string
	Err        error
}

// CorpusStatsLoaded carries the summary shown on the menu.
type CorpusStatsLoaded struct {
	Stats *driving.CorpusStats
	Err   error
}

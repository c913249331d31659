// Package documents provides the documents list view for the TUI.
package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/kb/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/kb/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

var (
	// ErrNoDocumentService is reported when the view has no document service.
	ErrNoDocumentService = errors.New("document service not available")

	// ErrNoIngestionService is reported when retry is chosen without ingestion.
	ErrNoIngestionService = errors.New("ingestion service not available")
)

// Action is an entry in the per-document action menu.
type Action int

const (
	ActionShowContent Action = iota
	ActionShowDetails
	ActionRetry
	ActionDelete
	ActionCancel
)

var actionLabels = map[Action]string{
	ActionShowContent: "Show Content",
	ActionShowDetails: "Show Details",
	ActionRetry:       "Retry Ingestion",
	ActionDelete:      "Delete",
	ActionCancel:      "Cancel",
}

// String returns the menu label of the action.
func (a Action) String() string {
	return actionLabels[a]
}

// View lists uploaded documents with their ingestion status.
type View struct {
	styles           *styles.Styles
	documentService  driving.DocumentService
	ingestionService driving.IngestionService
	ctx              context.Context

	documents    []domain.Document
	selected     int
	scrollOffset int
	width        int
	height       int
	ready        bool
	loading      bool
	err          error
	notice       string

	showingMenu  bool
	menuSelected Action
}

// NewView creates a documents view. ingestion may be nil; retry is then
// reported as unavailable.
func NewView(s *styles.Styles, documents driving.DocumentService, ingestion driving.IngestionService) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	return &View{
		styles:           s,
		documentService:  documents,
		ingestionService: ingestion,
		ctx:              context.Background(),
		width:            80,
		height:           24,
	}
}

// WithContext sets the context for service calls.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// Init loads the document list.
func (v *View) Init() tea.Cmd {
	return v.Load()
}

// Load returns a command that reloads the document list.
func (v *View) Load() tea.Cmd {
	v.loading = true
	ctx, service := v.ctx, v.documentService
	return func() tea.Msg {
		if service == nil {
			return messages.DocumentsLoaded{Err: ErrNoDocumentService}
		}
		docs, err := service.List(ctx, domain.DocumentFilter{})
		return messages.DocumentsLoaded{Documents: docs, Err: err}
	}
}

// Update handles messages for the documents view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)

	case tea.KeyMsg:
		if v.showingMenu {
			return v.handleMenuKey(msg)
		}
		return v.handleKey(msg)

	case messages.DocumentsLoaded:
		v.loading = false
		v.err = msg.Err
		if msg.Err == nil {
			v.documents = msg.Documents
			v.clampSelection()
		}

	case messages.DocumentDeleted:
		if msg.Err != nil {
			v.err = msg.Err
			return v, nil
		}
		v.notice = "Deleted " + msg.DocumentID
		return v, v.Load()

	case messages.DocumentRetried:
		if msg.Err != nil {
			v.err = msg.Err
			return v, nil
		}
		v.notice = "Re-queued " + msg.DocumentID
		return v, v.Load()

	case messages.ErrorOccurred:
		v.err = msg.Err
	}

	return v, nil
}

func (v *View) handleKey(msg tea.KeyMsg) (*View, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if v.selected > 0 {
			v.selected--
			v.adjustScroll()
		}
	case "down", "j":
		if v.selected < len(v.documents)-1 {
			v.selected++
			v.adjustScroll()
		}
	case "enter":
		if len(v.documents) > 0 {
			v.showingMenu = true
			v.menuSelected = ActionShowContent
		}
	case "r":
		v.notice = ""
		return v, v.Load()
	case "esc":
		return v, func() tea.Msg {
			return messages.ViewChanged{View: messages.ViewMenu}
		}
	}
	return v, nil
}

func (v *View) handleMenuKey(msg tea.KeyMsg) (*View, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if v.menuSelected > ActionShowContent {
			v.menuSelected--
		}
	case "down", "j":
		if v.menuSelected < ActionCancel {
			v.menuSelected++
		}
	case "enter":
		v.showingMenu = false
		return v, v.runAction(v.menuSelected)
	case "esc":
		v.showingMenu = false
	}
	return v, nil
}

func (v *View) runAction(action Action) tea.Cmd {
	doc := v.SelectedDocument()
	if doc == nil {
		return nil
	}
	id := doc.ID
	ctx := v.ctx

	switch action {
	case ActionShowContent:
		selected := *doc
		return func() tea.Msg {
			return messages.DocumentSelected{Document: selected, From: messages.ViewDocuments}
		}

	case ActionShowDetails:
		service := v.documentService
		return func() tea.Msg {
			if service == nil {
				return messages.DocumentDetailsLoaded{Err: ErrNoDocumentService}
			}
			d, err := service.Get(ctx, id)
			return messages.DocumentDetailsLoaded{Document: d, Err: err}
		}

	case ActionRetry:
		service := v.ingestionService
		return func() tea.Msg {
			if service == nil {
				return messages.DocumentRetried{DocumentID: id, Err: ErrNoIngestionService}
			}
			_, err := service.Retry(ctx, id)
			return messages.DocumentRetried{DocumentID: id, Err: err}
		}

	case ActionDelete:
		service := v.documentService
		return func() tea.Msg {
			if service == nil {
				return messages.DocumentDeleted{DocumentID: id, Err: ErrNoDocumentService}
			}
			return messages.DocumentDeleted{DocumentID: id, Err: service.Delete(ctx, id)}
		}

	case ActionCancel:
	}
	return nil
}

func (v *View) clampSelection() {
	if v.selected >= len(v.documents) {
		v.selected = max(len(v.documents)-1, 0)
	}
	v.adjustScroll()
}

func (v *View) adjustScroll() {
	visible := v.visibleItemCount()
	if v.selected < v.scrollOffset {
		v.scrollOffset = v.selected
	} else if v.selected >= v.scrollOffset+visible {
		v.scrollOffset = v.selected - visible + 1
	}
}

func (v *View) visibleItemCount() int {
	return max(v.height-8, 1)
}

// View renders the documents view.
func (v *View) View() string {
	var b strings.Builder

	b.WriteString(v.styles.Title.Render(fmt.Sprintf("Documents (%d)", len(v.documents))))
	b.WriteString("\n\n")

	switch {
	case v.loading && len(v.documents) == 0:
		b.WriteString(v.styles.Muted.Render("Loading documents..."))
	case v.err != nil:
		b.WriteString(v.styles.Error.Render("Error: " + v.err.Error()))
	case len(v.documents) == 0:
		b.WriteString(v.styles.Muted.Render("No documents uploaded. Use `kb upload <file>` to add one."))
	case v.showingMenu:
		b.WriteString(v.renderActionMenu())
		return b.String()
	default:
		b.WriteString(v.renderList())
	}

	if v.notice != "" && v.err == nil {
		b.WriteString("\n\n")
		b.WriteString(v.styles.Success.Render(v.notice))
	}

	b.WriteString("\n\n")
	b.WriteString(v.styles.Help.Render("[↑/↓] navigate  [enter] actions  [r] reload  [esc] back"))
	return b.String()
}

func (v *View) renderList() string {
	visible := v.visibleItemCount()
	end := min(v.scrollOffset+visible, len(v.documents))

	lines := make([]string, 0, end-v.scrollOffset+2)
	for i := v.scrollOffset; i < end; i++ {
		lines = append(lines, v.renderDocument(i, &v.documents[i]))
	}
	if len(v.documents) > visible {
		lines = append(lines, "", v.styles.Muted.Render(fmt.Sprintf("  [%d-%d of %d]",
			v.scrollOffset+1, end, len(v.documents))))
	}
	return strings.Join(lines, "\n")
}

func (v *View) renderDocument(index int, doc *domain.Document) string {
	title := doc.Title
	if title == "" {
		title = doc.Filename
	}
	width := max(v.width-40, 12)
	if r := []rune(title); len(r) > width {
		title = string(r[:width-3]) + "..."
	}

	meta := fmt.Sprintf("%-5s %-13s %4d chunks", doc.SourceType, doc.Permission, doc.ChunkCount)

	if index == v.selected {
		return v.styles.Selected.Render(fmt.Sprintf("> %-*s  %-10s %s", width, title, doc.Status, meta))
	}
	return "  " + v.styles.Normal.Render(fmt.Sprintf("%-*s  ", width, title)) +
		v.styles.Status(doc.Status) + strings.Repeat(" ", max(11-len(doc.Status), 1)) +
		v.styles.Muted.Render(meta)
}

func (v *View) renderActionMenu() string {
	var b strings.Builder

	if doc := v.SelectedDocument(); doc != nil {
		title := doc.Title
		if title == "" {
			title = doc.ID
		}
		b.WriteString(v.styles.Subtitle.Render("Actions for: " + title))
		b.WriteString("\n\n")
	}

	for a := ActionShowContent; a <= ActionCancel; a++ {
		if a == v.menuSelected {
			b.WriteString(v.styles.Selected.Render("> " + a.String()))
		} else {
			b.WriteString(v.styles.Normal.Render("  " + a.String()))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(v.styles.Help.Render("[↑/↓] navigate  [enter] select  [esc] cancel"))
	return b.String()
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.ready = true
}

// Documents returns the loaded documents.
func (v *View) Documents() []domain.Document {
	return v.documents
}

// SelectedIndex returns the selected document index.
func (v *View) SelectedIndex() int {
	return v.selected
}

// SelectedDocument returns the selected document, or nil when empty.
func (v *View) SelectedDocument() *domain.Document {
	if v.selected < 0 || v.selected >= len(v.documents) {
		return nil
	}
	return &v.documents[v.selected]
}

// IsShowingMenu reports whether the action menu is open.
func (v *View) IsShowingMenu() bool {
	return v.showingMenu
}

// MenuSelected returns the highlighted action.
func (v *View) MenuSelected() Action {
	return v.menuSelected
}

// Loading reports whether a reload is in flight.
func (v *View) Loading() bool {
	return v.loading
}

// Notice returns the last success message.
func (v *View) Notice() string {
	return v.notice
}

// Err returns the last error.
func (v *View) Err() error {
	return v.err
}

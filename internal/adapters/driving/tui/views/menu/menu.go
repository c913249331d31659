// Package menu is the TUI start screen.
package menu

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/kb/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/kb/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/kb/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

// Item is one menu entry. Quit entries exit instead of navigating.
type Item struct {
	Label       string
	Description string
	View        messages.ViewType
	Quit        bool
}

// View lists the entry points and a one-line corpus summary. Entries are
// chosen with the arrow keys or by their number.
type View struct {
	ctx      context.Context
	styles   *styles.Styles
	keymap   *keymap.KeyMap
	docs     driving.DocumentService
	items    []Item
	selected int
	summary  string
	ready    bool
}

// NewView builds the menu. docs may be nil, in which case no summary is shown.
func NewView(s *styles.Styles, km *keymap.KeyMap, docs driving.DocumentService) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}
	return &View{
		ctx:    context.Background(),
		styles: s,
		keymap: km,
		docs:   docs,
		items: []Item{
			{Label: "Ask", Description: "ask questions about your documents", View: messages.ViewChat},
			{Label: "Documents", Description: "browse, retry and delete uploads", View: messages.ViewDocuments},
			{Label: "Help", Description: "keybindings", View: messages.ViewHelp},
			{Label: "Quit", Quit: true},
		},
	}
}

// WithContext sets the context used for the stats request.
func (v *View) WithContext(ctx context.Context) {
	v.ctx = ctx
}

// Init refreshes the corpus summary.
func (v *View) Init() tea.Cmd {
	if v.docs == nil {
		return nil
	}
	ctx, docs := v.ctx, v.docs
	return func() tea.Msg {
		stats, err := docs.Stats(ctx)
		return messages.CorpusStatsLoaded{Stats: stats, Err: err}
	}
}

// Update handles navigation and the stats reply.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)

	case messages.CorpusStatsLoaded:
		v.summary = summarise(msg)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, v.keymap.Up):
			v.selected = max(v.selected-1, 0)
		case key.Matches(msg, v.keymap.Down):
			v.selected = min(v.selected+1, len(v.items)-1)
		case key.Matches(msg, v.keymap.Select):
			return v, v.choose(v.selected)
		case msg.String() == "q":
			return v, tea.Quit
		default:
			if n, err := strconv.Atoi(msg.String()); err == nil && n >= 1 && n <= len(v.items) {
				v.selected = n - 1
				return v, v.choose(v.selected)
			}
		}
	}
	return v, nil
}

func (v *View) choose(i int) tea.Cmd {
	item := v.items[i]
	if item.Quit {
		return tea.Quit
	}
	return func() tea.Msg {
		return messages.ViewChanged{View: item.View}
	}
}

func summarise(msg messages.CorpusStatsLoaded) string {
	if msg.Err != nil {
		return "Corpus unavailable: " + msg.Err.Error()
	}
	if msg.Stats == nil {
		return ""
	}
	s := msg.Stats
	line := fmt.Sprintf("%d documents, %d vectors", s.Documents, s.Vectors)
	var parts []string
	for _, status := range []domain.DocumentStatus{domain.StatusPending, domain.StatusProcessing, domain.StatusFailed} {
		if n := s.ByStatus[status]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, status))
		}
	}
	if len(parts) > 0 {
		line += " (" + strings.Join(parts, ", ") + ")"
	}
	return line
}

// View renders the menu.
func (v *View) View() string {
	if !v.ready {
		return "Initialising..."
	}

	var b strings.Builder
	b.WriteString(v.styles.Title.Render("kb"))
	b.WriteString("\n")
	b.WriteString(v.styles.Muted.Render("Knowledge base"))
	b.WriteString("\n\n")

	for i, item := range v.items {
		label := fmt.Sprintf("%d. %s", i+1, item.Label)
		if i == v.selected {
			b.WriteString(v.styles.Selected.Render("> " + label))
		} else {
			b.WriteString(v.styles.Normal.Render("  " + label))
		}
		if item.Description != "" {
			b.WriteString("  ")
			b.WriteString(v.styles.Muted.Render(item.Description))
		}
		b.WriteString("\n")
	}

	if v.summary != "" {
		b.WriteString("\n")
		b.WriteString(v.styles.Muted.Render(v.summary))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(v.styles.Help.Render("[j/k] navigate  [1-4/enter] select  [q] quit"))
	return b.String()
}

// SetDimensions marks the view ready. The menu does not wrap, so the size
// itself is unused.
func (v *View) SetDimensions(_, _ int) {
	v.ready = true
}

// Selected returns the highlighted index.
func (v *View) Selected() int {
	return v.selected
}

// Items returns the menu entries.
func (v *View) Items() []Item {
	return v.items
}

// Summary returns the corpus line.
func (v *View) Summary() string {
	return v.summary
}

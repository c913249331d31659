// Package list provides list display components for the TUI.
package list

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/kb/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/kb/internal/core/domain"
)

// linesPerSource is the height of one rendered entry.
const linesPerSource = 2

// SourceList displays the passages behind an answer, numbered the way the
// answer cites them.
type SourceList struct {
	sources  []domain.Source
	cited    map[int]bool
	selected int
	styles   *styles.Styles
	width    int
	height   int
}

// NewSourceList creates an empty source list.
func NewSourceList(s *styles.Styles) *SourceList {
	if s == nil {
		s = styles.DefaultStyles()
	}
	return &SourceList{
		styles: s,
		width:  80,
		height: 10,
	}
}

// Init initialises the list.
func (l *SourceList) Init() tea.Cmd {
	return nil
}

// Update handles navigation keys.
func (l *SourceList) Update(msg tea.Msg) (*SourceList, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "up", "k":
			l.MoveUp()
		case "down", "j":
			l.MoveDown()
		}
	}
	return l, nil
}

// View renders the list.
func (l *SourceList) View() string {
	if len(l.sources) == 0 {
		return l.styles.Muted.Render("No sources")
	}

	lines := make([]string, 0, len(l.sources)*linesPerSource+2)
	lines = append(lines, l.styles.Subtitle.Render(fmt.Sprintf("Sources (%d)", len(l.sources))), "")

	visible := max((l.height-2)/linesPerSource, 1)
	start := 0
	if l.selected >= visible {
		start = l.selected - visible + 1
	}
	end := min(start+visible, len(l.sources))

	for i := start; i < end; i++ {
		lines = append(lines, l.renderSource(i, &l.sources[i]))
	}
	return strings.Join(lines, "\n")
}

func (l *SourceList) renderSource(index int, src *domain.Source) string {
	indicator := "  "
	if index == l.selected {
		indicator = "> "
	}

	title := src.DocumentTitle
	if title == "" {
		title = src.DocumentID
	}
	maxTitle := max(l.width-24, 10)
	title = clip(title, maxTitle)

	marker := fmt.Sprintf("[%d]", index+1)
	score := fmt.Sprintf("%.2f", src.RankScore())

	var head string
	if index == l.selected {
		head = l.styles.Selected.Render(fmt.Sprintf("%s%-5s %-*s  %s", indicator, marker, maxTitle, title, score))
	} else {
		markerStyle := l.styles.Muted
		if l.cited[index+1] {
			markerStyle = l.styles.Citation
		}
		head = indicator + markerStyle.Render(fmt.Sprintf("%-5s", marker)) + " " +
			l.styles.Normal.Render(fmt.Sprintf("%-*s  ", maxTitle, title)) +
			l.styles.Muted.Render(score)
	}

	preview := clip(strings.Join(strings.Fields(src.Content), " "), max(l.width-8, 20))
	return head + "\n" + l.styles.Muted.Render("      "+preview)
}

// clip shortens s to n runes with an ellipsis.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// SetSources replaces the list. citations are the 1-based indexes the
// answer used; they are highlighted.
func (l *SourceList) SetSources(sources []domain.Source, citations []int) {
	l.sources = sources
	l.selected = 0
	l.cited = make(map[int]bool, len(citations))
	for _, c := range citations {
		l.cited[c] = true
	}
}

// Sources returns the current sources.
func (l *SourceList) Sources() []domain.Source {
	return l.sources
}

// Selected returns the index of the selected source.
func (l *SourceList) Selected() int {
	return l.selected
}

// SelectedSource returns the selected source, or nil when empty.
func (l *SourceList) SelectedSource() *domain.Source {
	if l.selected < 0 || l.selected >= len(l.sources) {
		return nil
	}
	return &l.sources[l.selected]
}

// IsCited reports whether the 1-based source n was cited.
func (l *SourceList) IsCited(n int) bool {
	return l.cited[n]
}

// MoveUp moves the selection up.
func (l *SourceList) MoveUp() {
	if l.selected > 0 {
		l.selected--
	}
}

// MoveDown moves the selection down.
func (l *SourceList) MoveDown() {
	if l.selected < len(l.sources)-1 {
		l.selected++
	}
}

// SetDimensions sets the component size.
func (l *SourceList) SetDimensions(width, height int) {
	l.width = width
	l.height = height
}

// Count returns the number of sources.
func (l *SourceList) Count() int {
	return len(l.sources)
}

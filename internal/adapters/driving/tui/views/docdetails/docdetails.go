// Package docdetails provides the document details view for the TUI.
package docdetails

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/custodia-labs/kb/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/kb/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/kb/internal/core/domain"
)

const timeLayout = "2006-01-02 15:04:05"

// reservedLines is the height taken by title, separator and help.
const reservedLines = 6

// View shows the stored record of a single document.
type View struct {
	styles   *styles.Styles
	viewport viewport.Model

	document *domain.Document
	width    int
	height   int
	err      error
}

// NewView creates a document details view.
func NewView(s *styles.Styles) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	return &View{
		styles:   s,
		viewport: viewport.New(80, 24-reservedLines),
		width:    80,
		height:   24,
	}
}

// SetDocument sets the document to display.
func (v *View) SetDocument(doc *domain.Document) {
	v.document = doc
	v.err = nil
	v.viewport.SetContent(strings.Join(v.buildLines(), "\n"))
	v.viewport.GotoTop()
}

// SetError sets an error to display.
func (v *View) SetError(err error) {
	v.err = err
}

// Init initialises the view.
func (v *View) Init() tea.Cmd {
	return nil
}

// Update handles messages for the details view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		if msg.String() == "esc" {
			return v, func() tea.Msg {
				return messages.ViewChanged{View: messages.ViewDocuments}
			}
		}

	case messages.DocumentDetailsLoaded:
		if msg.Err != nil {
			v.SetError(msg.Err)
		} else {
			v.SetDocument(msg.Document)
		}
		return v, nil

	case messages.ErrorOccurred:
		v.err = msg.Err
		return v, nil
	}

	var cmd tea.Cmd
	v.viewport, cmd = v.viewport.Update(msg)
	return v, cmd
}

func (v *View) buildLines() []string {
	d := v.document
	if d == nil {
		return nil
	}

	lines := []string{
		v.field("ID", d.ID),
		v.field("Title", d.Title),
		v.field("Filename", d.Filename),
		v.field("Type", string(d.SourceType)),
		v.field("Size", fmt.Sprintf("%d bytes", d.Size)),
		v.field("Permission", string(d.Permission)),
		v.styles.Subtitle.Render(fmt.Sprintf("%-12s ", "Status:")) + v.styles.Status(d.Status),
		v.field("Chunks", fmt.Sprintf("%d", d.ChunkCount)),
	}
	if d.Error != "" {
		lines = append(lines, v.styles.Subtitle.Render(fmt.Sprintf("%-12s ", "Error:"))+v.styles.Error.Render(d.Error))
	}

	lines = appendTime(lines, v, "Uploaded", d.CreatedAt)
	lines = appendTime(lines, v, "Updated", d.UpdatedAt)
	if d.IndexedAt != nil {
		lines = appendTime(lines, v, "Indexed", *d.IndexedAt)
	}

	if len(d.Metadata) > 0 {
		lines = append(lines, "", v.styles.Subtitle.Render("Metadata:"))
		keys := make([]string, 0, len(d.Metadata))
		for k := range d.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			value := fmt.Sprint(d.Metadata[k])
			if r := []rune(value); len(r) > 60 {
				value = string(r[:57]) + "..."
			}
			lines = append(lines, v.styles.Muted.Render("  "+k+": ")+v.styles.Normal.Render(value))
		}
	}
	return lines
}

func appendTime(lines []string, v *View, label string, t time.Time) []string {
	if t.IsZero() {
		return lines
	}
	return append(lines, v.field(label, t.Local().Format(timeLayout)))
}

func (v *View) field(label, value string) string {
	return v.styles.Subtitle.Render(fmt.Sprintf("%-12s ", label+":")) + v.styles.Normal.Render(value)
}

// View renders the details view.
func (v *View) View() string {
	var b strings.Builder

	b.WriteString(v.styles.Title.Render("Document Details"))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", min(max(v.width-4, 0), 60)))
	b.WriteString("\n\n")

	switch {
	case v.err != nil:
		b.WriteString(v.styles.Error.Render("Error: " + v.err.Error()))
	case v.document == nil:
		b.WriteString(v.styles.Muted.Render("No document selected"))
	default:
		b.WriteString(v.viewport.View())
	}

	b.WriteString("\n\n")
	b.WriteString(v.styles.Help.Render("[↑/↓] scroll  [esc] back"))
	return b.String()
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.viewport.Width = width
	v.viewport.Height = max(height-reservedLines, 1)
}

// Document returns the displayed document.
func (v *View) Document() *domain.Document {
	return v.document
}

// Err returns the last error.
func (v *View) Err() error {
	return v.err
}

// Package chat provides the question and answer view for the TUI.
//
// The view has two modes. In input mode keys go to the question field and
// enter asks. Once an answer arrives focus moves to the source list, where
// enter opens the cited document and "/" asks a follow-up in the same
// conversation.
package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/kb/internal/adapters/driving/tui/components/input"
	"github.com/custodia-labs/kb/internal/adapters/driving/tui/components/list"
	"github.com/custodia-labs/kb/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/kb/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/kb/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/kb/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/kb/internal/core/domain"
	"github.com/custodia-labs/kb/internal/core/ports/driving"
)

// ErrNoQueryService is returned when asking without a query service.
var ErrNoQueryService = errors.New("query service not available")

// Turn is one question and its answer.
type Turn struct {
	Question string
	Answer   string
}

// View is the chat view.
type View struct {
	styles    *styles.Styles
	keymap    *keymap.KeyMap
	input     *input.QuestionInput
	sources   *list.SourceList
	statusbar *status.Bar

	queryService driving.QueryService
	scope        domain.Scope
	ctx          context.Context

	conversationID string
	turns          []Turn
	pending        string

	width      int
	height     int
	ready      bool
	err        error
	focusInput bool
}

// NewView creates a chat view that asks within scope.
func NewView(s *styles.Styles, km *keymap.KeyMap, queryService driving.QueryService, scope domain.Scope) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	return &View{
		styles:       s,
		keymap:       km,
		input:        input.NewQuestionInput(s),
		sources:      list.NewSourceList(s),
		statusbar:    status.NewBar(s, km),
		queryService: queryService,
		scope:        scope,
		ctx:          context.Background(),
		width:        80,
		height:       24,
		focusInput:   true,
	}
}

// WithContext sets the context used for questions.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// Init initialises the view.
func (v *View) Init() tea.Cmd {
	return v.input.Init()
}

// Update handles messages for the chat view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case messages.AnswerReceived:
		v.handleAnswer(msg)
		return v, nil

	case messages.ErrorOccurred:
		v.setError(msg.Err)
		return v, nil
	}

	var cmd tea.Cmd
	if v.focusInput {
		v.input, cmd = v.input.Update(msg)
	}
	return v, cmd
}

func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	if key.Matches(msg, v.keymap.Back) {
		return v, func() tea.Msg {
			return messages.ViewChanged{View: messages.ViewMenu}
		}
	}

	if v.focusInput {
		if msg.Type == tea.KeyEnter {
			return v, v.submit()
		}
		var cmd tea.Cmd
		v.input, cmd = v.input.Update(msg)
		return v, cmd
	}

	switch {
	case key.Matches(msg, v.keymap.Up):
		v.sources.MoveUp()
	case key.Matches(msg, v.keymap.Down):
		v.sources.MoveDown()
	case key.Matches(msg, v.keymap.Select):
		return v, v.openSelected()
	case key.Matches(msg, v.keymap.Question):
		v.focus()
	case key.Matches(msg, v.keymap.NewConversation):
		v.Reset()
	}
	return v, nil
}

// submit asks the typed question unless one is already in flight.
func (v *View) submit() tea.Cmd {
	question := strings.TrimSpace(v.input.Value())
	if question == "" || v.pending != "" {
		return nil
	}

	v.pending = question
	v.err = nil
	v.statusbar.SetState(status.StateThinking)
	v.statusbar.SetMessage("")
	v.input.Reset()
	v.input.Blur()
	v.focusInput = false

	return v.ask(question, v.conversationID)
}

func (v *View) ask(question, conversationID string) tea.Cmd {
	ctx := v.ctx
	service := v.queryService
	req := driving.AskRequest{
		Query:          question,
		ConversationID: conversationID,
		Scope:          v.scope,
	}
	return func() tea.Msg {
		if service == nil {
			return messages.AnswerReceived{Question: question, Err: ErrNoQueryService}
		}
		resp, err := service.Ask(ctx, req)
		return messages.AnswerReceived{Question: question, Response: resp, Err: err}
	}
}

func (v *View) handleAnswer(msg messages.AnswerReceived) {
	v.pending = ""
	if msg.Err != nil {
		v.setError(msg.Err)
		v.focus()
		return
	}
	if msg.Response == nil {
		v.focus()
		return
	}

	v.err = nil
	v.conversationID = msg.Response.ConversationID
	v.turns = append(v.turns, Turn{Question: msg.Question, Answer: msg.Response.Answer})
	v.sources.SetSources(msg.Response.Sources, msg.Response.Citations)

	v.statusbar.SetState(status.StateAnswered)
	v.statusbar.SetAnswer(len(msg.Response.Sources), v.conversationID)
	if !msg.Response.HasContext {
		v.statusbar.SetMessage("no matching documents")
	} else {
		v.statusbar.SetMessage("")
	}

	if v.sources.Count() == 0 {
		v.focus()
	}
}

func (v *View) openSelected() tea.Cmd {
	src := v.sources.SelectedSource()
	if src == nil {
		return nil
	}
	doc := domain.Document{ID: src.DocumentID, Title: src.DocumentTitle}
	return func() tea.Msg {
		return messages.DocumentSelected{Document: doc, From: messages.ViewChat}
	}
}

func (v *View) setError(err error) {
	v.err = err
	v.statusbar.SetState(status.StateError)
	if err != nil {
		v.statusbar.SetMessage(err.Error())
	}
}

func (v *View) focus() {
	v.focusInput = true
	v.input.Focus()
}

// View renders the chat view.
func (v *View) View() string {
	if !v.ready {
		return "Initialising..."
	}

	sections := make([]string, 0, 12)
	sections = append(sections, v.styles.Title.Render("Ask"), "")

	if transcript := v.renderTranscript(); transcript != "" {
		sections = append(sections, transcript, "")
	}

	if v.pending != "" {
		sections = append(sections,
			v.styles.Subtitle.Render("Q: "+v.pending),
			v.styles.Muted.Render("Thinking..."), "")
	}

	if v.err != nil {
		sections = append(sections, v.styles.Error.Render("Error: "+v.err.Error()), "")
	}

	if len(v.turns) > 0 && v.pending == "" {
		sections = append(sections, v.sources.View(), "")
	}

	sections = append(sections, v.input.View(), "", v.statusbar.View())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderTranscript shows earlier turns as single lines and the latest
// answer in full.
func (v *View) renderTranscript() string {
	if len(v.turns) == 0 {
		return ""
	}

	lines := make([]string, 0, len(v.turns)+3)
	for _, t := range v.turns[:len(v.turns)-1] {
		lines = append(lines, v.styles.Muted.Render("Q: "+oneLine(t.Question, v.width-8)))
	}

	last := v.turns[len(v.turns)-1]
	lines = append(lines,
		v.styles.Subtitle.Render("Q: "+last.Question),
		v.styles.Answer.Width(max(v.width-4, 20)).Render(last.Answer))
	return strings.Join(lines, "\n")
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if n < 4 || len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.ready = true

	v.input.SetWidth(width)
	v.sources.SetDimensions(width, max(height/3, 6))
	v.statusbar.SetWidth(width)
}

// Reset starts a new conversation.
func (v *View) Reset() {
	v.conversationID = ""
	v.turns = nil
	v.pending = ""
	v.err = nil
	v.sources.SetSources(nil, nil)
	v.statusbar.Clear()
	v.input.Reset()
	v.focus()
}

// ConversationID returns the conversation follow-ups continue.
func (v *View) ConversationID() string {
	return v.conversationID
}

// Turns returns the answered turns of the current conversation.
func (v *View) Turns() []Turn {
	return v.turns
}

// Sources returns the sources of the latest answer.
func (v *View) Sources() []domain.Source {
	return v.sources.Sources()
}

// SelectedIndex returns the selected source index.
func (v *View) SelectedIndex() int {
	return v.sources.Selected()
}

// SetQuestion sets the question text.
func (v *View) SetQuestion(q string) {
	v.input.SetValue(q)
}

// Question returns the question text.
func (v *View) Question() string {
	return v.input.Value()
}

// InputFocused reports whether keys go to the question field.
func (v *View) InputFocused() bool {
	return v.focusInput
}

// Pending returns the question awaiting an answer.
func (v *View) Pending() string {
	return v.pending
}

// Ready returns whether the view is ready to render.
func (v *View) Ready() bool {
	return v.ready
}

// Err returns the current error, if any.
func (v *View) Err() error {
	return v.err
}

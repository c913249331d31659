// Package keymap holds the TUI key bindings.
package keymap

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap groups every binding the views react to. Views match with
// key.Matches so rebinding here changes behaviour and help text together.
type KeyMap struct {
	Quit key.Binding
	Back key.Binding

	// Chat.
	Ask             key.Binding
	Question        key.Binding
	NewConversation key.Binding

	// Lists and pagers.
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Top    key.Binding
	Bottom key.Binding

	// Documents.
	Refresh key.Binding
}

var _ help.KeyMap = (*KeyMap)(nil)

// DefaultKeyMap returns vim-style bindings with arrow-key alternatives.
func DefaultKeyMap() *KeyMap {
	bind := func(help, desc string, keys ...string) key.Binding {
		return key.NewBinding(key.WithKeys(keys...), key.WithHelp(help, desc))
	}
	return &KeyMap{
		Quit:            bind("ctrl+c", "quit", "ctrl+c"),
		Back:            bind("esc", "back", "esc"),
		Ask:             bind("enter", "ask", "enter"),
		Question:        bind("/", "follow up", "/"),
		NewConversation: bind("n", "new chat", "n"),
		Up:              bind("↑/k", "up", "up", "k"),
		Down:            bind("↓/j", "down", "down", "j"),
		Select:          bind("enter", "select", "enter"),
		Top:             bind("g", "top", "g", "home"),
		Bottom:          bind("G", "bottom", "G", "end"),
		Refresh:         bind("r", "reload", "r"),
	}
}

// InputHelp is shown in the status bar while a question is being typed.
func (k *KeyMap) InputHelp() []key.Binding {
	return []key.Binding{k.Ask, k.Back, k.Quit}
}

// SourcesHelp is shown in the status bar while browsing an answer's sources.
func (k *KeyMap) SourcesHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Question, k.NewConversation, k.Back}
}

// ShortHelp implements help.KeyMap.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Back, k.Quit}
}

// FullHelp implements help.KeyMap with one column per area of the TUI.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Ask, k.Question, k.NewConversation},
		{k.Up, k.Down, k.Select, k.Top, k.Bottom},
		{k.Refresh, k.Back, k.Quit},
	}
}

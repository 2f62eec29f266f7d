package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit    key.Binding
	Submit  key.Binding
	Cancel  key.Binding
	New     key.Binding
	Raw     key.Binding
	Cleanup key.Binding
	Log     key.Binding
}

// Letter bindings also carry a ctrl variant so they still work while the URL
// input has focus.
var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "summarize"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "cancel"),
	),
	New: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "summarize another"),
	),
	Raw: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "raw results"),
	),
	Cleanup: key.NewBinding(
		key.WithKeys("d", "ctrl+d"),
		key.WithHelp("d", "delete objects"),
	),
	Log: key.NewBinding(
		key.WithKeys("l", "ctrl+l"),
		key.WithHelp("l", "debug log"),
	),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.Cancel, k.New, k.Raw, k.Cleanup, k.Log, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Submit, k.Cancel, k.New},
		{k.Raw, k.Cleanup, k.Log, k.Quit},
	}
}

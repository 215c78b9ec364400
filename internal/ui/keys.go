package ui

import (
	"github.com/charmbracelet/bubbles/key"
)

// keyMap lists the bindings shown by the help bar and the help pager
type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Top      key.Binding
	Bottom   key.Binding
	Search   key.Binding
	Blur     key.Binding
	Settings key.Binding
	Log      key.Binding
	Help     key.Binding
	Quit     key.Binding
}

// settingsKeyMap lists the bindings of the settings screen
type settingsKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Pick   key.Binding
	Type   key.Binding
	Remove key.Binding
	Save   key.Binding
	Reset  key.Binding
	Back   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		PageUp:   key.NewBinding(key.WithKeys("pgup", "ctrl+u"), key.WithHelp("pgup", "page up")),
		PageDown: key.NewBinding(key.WithKeys("pgdown", "ctrl+d"), key.WithHelp("pgdn", "page down")),
		Top:      key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("g", "top")),
		Bottom:   key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("G", "bottom")),
		Search:   key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
		Blur:     key.NewBinding(key.WithKeys("esc", "enter"), key.WithHelp("esc", "leave search")),
		Settings: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "settings")),
		Log:      key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "status log")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func newSettingsKeyMap() settingsKeyMap {
	return settingsKeyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Pick:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add folder")),
		Type:   key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "type path")),
		Remove: key.NewBinding(key.WithKeys("d", "x"), key.WithHelp("d", "remove")),
		Save:   key.NewBinding(key.WithKeys("w", "ctrl+s"), key.WithHelp("w", "save")),
		Reset:  key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "reset all")),
		Back:   key.NewBinding(key.WithKeys("esc", "q"), key.WithHelp("esc", "cancel")),
	}
}

// ShortHelp implements help.KeyMap
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Search, k.Down, k.Up, k.Settings, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown, k.Top, k.Bottom},
		{k.Search, k.Blur},
		{k.Settings, k.Log, k.Help, k.Quit},
	}
}

// ShortHelp implements help.KeyMap
func (k settingsKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Pick, k.Type, k.Remove, k.Save, k.Reset, k.Back}
}

// FullHelp implements help.KeyMap
func (k settingsKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Pick, k.Type, k.Remove},
		{k.Save, k.Reset, k.Back},
	}
}

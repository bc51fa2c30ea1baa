package keys

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the global keybindings for the terminal client.
type KeyMap struct {
	// Navigation
	Down key.Binding
	Up   key.Binding

	// Record actions
	Toggle key.Binding
	New    key.Binding
	Delete key.Binding

	// Views
	Week    key.Binding
	Month   key.Binding
	Order   key.Binding
	Day     key.Binding
	PrevDay key.Binding
	NextDay key.Binding

	// Connection
	Reconnect key.Binding
	Settings  key.Binding

	Back key.Binding
	Help key.Binding
	Quit key.Binding
}

// DefaultKeyMap returns the default set of keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "down"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "up"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" ", "x"),
			key.WithHelp("space/x", "toggle done"),
		),
		New: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new item"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		Week: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "weekly report"),
		),
		Month: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "monthly report"),
		),
		Order: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "cycle order"),
		),
		Day: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "day view / all"),
		),
		PrevDay: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "previous day"),
		),
		NextDay: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "next day"),
		),
		Reconnect: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reconnect"),
		),
		Settings: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "connection settings"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns the most essential keybindings for the compact help view.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.Up, k.Down, k.Toggle, k.New, k.Delete, k.Help, k.Quit,
	}
}

// FullHelp returns all keybindings grouped by category for the expanded
// help view.
func (k *KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Back, k.Quit},
		{k.Toggle, k.New, k.Delete},
		{k.Week, k.Month, k.Order},
		{k.Day, k.PrevDay, k.NextDay},
		{k.Reconnect, k.Settings, k.Help},
	}
}

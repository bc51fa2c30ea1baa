package recordlist

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workcal/internal/model"
	"github.com/nhle/workcal/internal/theme"
)

// Item wraps a model.Record so it can be used in a bubbles/list.
type Item struct {
	Record model.Record
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Record.Content }

// Title returns the record content.
func (i Item) Title() string { return i.Record.Content }

// Description returns the record date.
func (i Item) Description() string { return i.Record.Date }

// ItemDelegate renders one record per line: checkbox, date, content.
type ItemDelegate struct{}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

// Render draws a single list item line.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	fmt.Fprint(w, renderLine(it.Record, index == m.Index(), m.Width()))
}

func renderLine(r model.Record, selected bool, width int) string {
	check := "[ ]"
	if r.Completed {
		check = "[x]"
	}

	content := r.Content
	// checkbox, date and the spaces around them take 17 cells.
	if limit := width - 17; limit > 3 && lipgloss.Width(content) > limit {
		content = truncate(content, limit-1) + "…"
	}
	if r.Completed {
		content = theme.CompletedStyle.Render(content)
	}

	line := fmt.Sprintf("%s %s  %s", check, theme.DateStyle.Render(r.Date), content)
	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

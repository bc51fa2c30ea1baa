package recordlist

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workcal/internal/model"
	"github.com/nhle/workcal/internal/report"
	"github.com/nhle/workcal/internal/theme"
)

// Model is the live record list. It never loads anything itself: the app
// hands it every snapshot the session produces.
type Model struct {
	list   list.Model
	order  model.SortOrder
	snap   model.Snapshot
	day    time.Time
	byDay  bool
	width  int
	height int
}

// New creates an empty list.
func New(width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Work items"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	return Model{
		list:   l,
		width:  width,
		height: height,
	}
}

// SetSnapshot replaces the list contents with snap, keeping the cursor on
// the same record when it still exists.
func (m *Model) SetSnapshot(snap model.Snapshot) tea.Cmd {
	m.snap = snap.Clone()
	return m.refresh()
}

// Snapshot returns the last snapshot shown.
func (m Model) Snapshot() model.Snapshot { return m.snap }

// CycleOrder switches to the next sort order.
func (m *Model) CycleOrder() tea.Cmd {
	m.order = m.order.Next()
	return m.refresh()
}

// ShowDay narrows the list to the records dated day.
func (m *Model) ShowDay(day time.Time) tea.Cmd {
	m.day = day
	m.byDay = true
	return m.refresh()
}

// ShiftDay moves the day filter by n days. It does nothing when the whole
// list is shown.
func (m *Model) ShiftDay(n int) tea.Cmd {
	if !m.byDay {
		return nil
	}
	return m.ShowDay(m.day.AddDate(0, 0, n))
}

// ShowAll removes the day filter.
func (m *Model) ShowAll() tea.Cmd {
	m.byDay = false
	return m.refresh()
}

// Day returns the day the list is narrowed to, if any.
func (m Model) Day() (time.Time, bool) { return m.day, m.byDay }

// Order returns the current sort order.
func (m Model) Order() model.SortOrder { return m.order }

// SelectedRecord returns the record under the cursor.
func (m Model) SelectedRecord() (model.Record, bool) {
	it, ok := m.list.SelectedItem().(Item)
	if !ok {
		return model.Record{}, false
	}
	return it.Record, true
}

// Update delegates navigation keys to the list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the list, or guidance when it is empty.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		msg := "No work items yet.\n\nPress n to add one."
		if m.byDay {
			msg = fmt.Sprintf("No work items on %s.\n\nPress n to add one, t to show all.", m.day.Format("Monday, Jan 2"))
		}
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render(msg)
	}
	return m.list.View()
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}

func (m *Model) refresh() tea.Cmd {
	selectedID := ""
	if rec, ok := m.SelectedRecord(); ok {
		selectedID = rec.ID
	}

	records := m.snap.Clone().Records
	model.SortRecords(records, m.order)
	if m.byDay {
		records = report.ForDay(records, m.day)
	}

	items := make([]list.Item, len(records))
	cursor := 0
	for i, r := range records {
		items[i] = Item{Record: r}
		if r.ID == selectedID {
			cursor = i
		}
	}

	done, total := report.Summary(records)
	m.list.Title = fmt.Sprintf("Work items  %d/%d done  (%s first)", done, total, m.order)
	if m.order == model.OrderByDate {
		m.list.Title = fmt.Sprintf("Work items  %d/%d done  (by date)", done, total)
	}
	if m.byDay {
		m.list.Title = fmt.Sprintf("%s  %d/%d done", m.day.Format("Monday, Jan 2, 2006"), done, total)
	}

	cmd := m.list.SetItems(items)
	if len(items) > 0 {
		m.list.Select(cursor)
	}
	return cmd
}

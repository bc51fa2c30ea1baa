package reportview

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/workcal/internal/keys"
	"github.com/nhle/workcal/internal/model"
	"github.com/nhle/workcal/internal/report"
	"github.com/nhle/workcal/internal/theme"
)

// Period selects which report is shown.
type Period int

const (
	Weekly Period = iota
	Monthly
)

// CloseMsg is dispatched when the user leaves the report.
type CloseMsg struct{}

// Model shows a weekly or monthly report in a scrollable viewport. The
// report is re-rendered whenever a new snapshot arrives.
type Model struct {
	keys     *keys.KeyMap
	viewport viewport.Model
	period   Period
	day      time.Time
	records  []model.Record
}

// New creates a report view.
func New(k *keys.KeyMap, width, height int) Model {
	vp := viewport.New(max(width-6, 0), max(height-4, 0))
	return Model{keys: k, viewport: vp}
}

// Show switches to period around day.
func (m *Model) Show(period Period, day time.Time, snap model.Snapshot) {
	m.period = period
	m.day = day
	m.SetSnapshot(snap)
	m.viewport.GotoTop()
}

// SetSnapshot re-renders the report from snap.
func (m *Model) SetSnapshot(snap model.Snapshot) {
	m.records = snap.Clone().Records
	m.viewport.SetContent(m.Text())
}

// Text returns the plain report.
func (m Model) Text() string {
	if m.period == Monthly {
		return report.Monthly(m.records, m.day)
	}
	return report.Weekly(m.records, m.day)
}

// Update handles scrolling, period shifts and close.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return CloseMsg{} }
		case key.Matches(msg, m.keys.Week):
			m.period = Weekly
			m.viewport.SetContent(m.Text())
			return m, nil
		case key.Matches(msg, m.keys.Month):
			m.period = Monthly
			m.viewport.SetContent(m.Text())
			return m, nil
		case msg.String() == "left" || msg.String() == "h":
			m.shift(-1)
			return m, nil
		case msg.String() == "right" || msg.String() == "l":
			m.shift(1)
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) shift(n int) {
	if m.period == Monthly {
		m.day = report.MonthStart(m.day).AddDate(0, n, 0)
	} else {
		m.day = m.day.AddDate(0, 0, 7*n)
	}
	m.viewport.SetContent(m.Text())
	m.viewport.GotoTop()
}

// View renders the report panel.
func (m Model) View() string {
	return theme.PanelStyle.Render(m.viewport.View())
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.viewport.Width = max(width-6, 0)
	m.viewport.Height = max(height-4, 0)
}

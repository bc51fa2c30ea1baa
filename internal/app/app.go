package app

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/workcal/internal/client"
	"github.com/nhle/workcal/internal/keys"
	appsync "github.com/nhle/workcal/internal/sync"
	"github.com/nhle/workcal/internal/theme"
	"github.com/nhle/workcal/internal/ui"
	helpview "github.com/nhle/workcal/internal/ui/help"
	"github.com/nhle/workcal/internal/ui/recordform"
	"github.com/nhle/workcal/internal/ui/recordlist"
	"github.com/nhle/workcal/internal/ui/reportview"
	"github.com/nhle/workcal/internal/ui/settings"
)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewList ViewState = iota
	ViewForm
	ViewReport
	ViewHelp
	ViewSettings
)

// Model is the root Bubble Tea model. The record list is driven entirely
// by session updates; key presses only ever send mutations.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	list         recordlist.Model
	form         recordform.Model
	reportView   reportview.Model
	helpView     helpview.Model
	settings     *settings.Model
	driver       *appsync.Driver
	mutator      Mutator
	now          func() time.Time

	serverURL string
	token     string

	state     client.State
	stale     bool
	statusMsg string
	ready     bool
}

// New creates the root model. driver runs the session; mutator sends
// one-shot mutations.
func New(driver *appsync.Driver, mutator Mutator) Model {
	k := keys.DefaultKeyMap()
	return Model{
		currentView: ViewList,
		keys:        k,
		list:        recordlist.New(80, 22),
		form:        recordform.New(80, 22),
		reportView:  reportview.New(k, 80, 22),
		helpView:    helpview.New(k, 80, 22),
		driver:      driver,
		mutator:     mutator,
		now:         time.Now,
		state:       client.StateDisconnected,
	}
}

// WithSettings enables the connection settings view, prefilled with the
// settings the session was started with.
func (m Model) WithSettings(check settings.Checker, save settings.Saver, serverURL, token string) Model {
	s := settings.New(check, save, 80, 22)
	m.settings = &s
	m.serverURL = serverURL
	m.token = token
	return m
}

// Init starts the session.
func (m Model) Init() tea.Cmd {
	return m.driver.Start()
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := msg.Width, m.layout.ContentHeight()
		m.list.SetSize(w, h)
		m.form.SetSize(w, h)
		m.reportView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		if m.settings != nil {
			m.settings.SetSize(w, h)
		}
		return m.updateActiveView(msg)

	case appsync.SessionMsg:
		m.state = msg.State
		m.stale = msg.Stale
		cmd := m.list.SetSnapshot(msg.Snapshot)
		m.reportView.SetSnapshot(msg.Snapshot)
		return m, tea.Batch(cmd, m.driver.WaitForNextUpdate())

	case appsync.SessionEndedMsg:
		m.state = client.StateDisconnected
		if msg.Err != nil {
			m.statusMsg = "session ended: " + msg.Err.Error()
		}
		return m, nil

	case mutationResultMsg:
		m.statusMsg = msg.status()
		return m, nil

	case recordform.SubmitMsg:
		m.currentView = ViewList
		return m, m.createRecord(msg.Request.Date, msg.Request.Content)

	case recordform.CancelMsg:
		m.currentView = ViewList
		return m, nil

	case reportview.CloseMsg:
		m.currentView = ViewList
		return m, nil

	case settings.DoneMsg:
		m.currentView = ViewList
		if msg.Saved {
			m.statusMsg = "settings saved for " + msg.ServerURL + ", restart to apply"
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.driver.Stop()
			return m, tea.Quit
		}
		if m.currentView == ViewForm || m.currentView == ViewSettings {
			break
		}
		if m.currentView == ViewHelp {
			if key.Matches(msg, m.keys.Help, m.keys.Back) {
				m.currentView = m.previousView
			}
			return m, nil
		}
		if key.Matches(msg, m.keys.Help) {
			m.previousView = m.currentView
			m.currentView = ViewHelp
			return m, nil
		}
		if m.currentView == ViewList {
			if next, cmd, ok := m.handleListKeys(msg); ok {
				return next, cmd
			}
		}
	}

	return m.updateActiveView(msg)
}

// handleListKeys handles the keys of the list view. ok is false for keys
// the list itself should see (navigation).
func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.driver.Stop()
		return m, tea.Quit, true

	case key.Matches(msg, m.keys.New):
		m.currentView = ViewForm
		m.statusMsg = ""
		day := m.now()
		if d, ok := m.list.Day(); ok {
			day = d
		}
		return m, m.form.Start(day), true

	case key.Matches(msg, m.keys.Toggle):
		rec, ok := m.list.SelectedRecord()
		if !ok {
			return m, nil, true
		}
		return m, m.setCompleted(rec.ID, !rec.Completed), true

	case key.Matches(msg, m.keys.Delete):
		rec, ok := m.list.SelectedRecord()
		if !ok {
			return m, nil, true
		}
		return m, m.deleteRecord(rec.ID), true

	case key.Matches(msg, m.keys.Order):
		return m, m.list.CycleOrder(), true

	case key.Matches(msg, m.keys.Day):
		if _, ok := m.list.Day(); ok {
			return m, m.list.ShowAll(), true
		}
		day := m.now()
		if rec, ok := m.list.SelectedRecord(); ok {
			if d, err := rec.Day(); err == nil {
				day = d
			}
		}
		return m, m.list.ShowDay(day), true

	case key.Matches(msg, m.keys.PrevDay):
		return m, m.list.ShiftDay(-1), true

	case key.Matches(msg, m.keys.NextDay):
		return m, m.list.ShiftDay(1), true

	case key.Matches(msg, m.keys.Week, m.keys.Month):
		period := reportview.Weekly
		if key.Matches(msg, m.keys.Month) {
			period = reportview.Monthly
		}
		day := m.now()
		if rec, ok := m.list.SelectedRecord(); ok {
			if d, err := rec.Day(); err == nil {
				day = d
			}
		}
		m.reportView.Show(period, day, m.list.Snapshot())
		m.currentView = ViewReport
		return m, nil, true

	case key.Matches(msg, m.keys.Reconnect):
		m.driver.Reconnect()
		m.statusMsg = "reconnecting..."
		return m, nil, true

	case key.Matches(msg, m.keys.Settings):
		if m.settings == nil {
			return m, nil, true
		}
		m.currentView = ViewSettings
		m.statusMsg = ""
		return m, m.settings.Start(m.serverURL, m.token), true
	}
	return m, nil, false
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewList:
		m.list, cmd = m.list.Update(msg)
	case ViewForm:
		m.form, cmd = m.form.Update(msg)
	case ViewReport:
		m.reportView, cmd = m.reportView.Update(msg)
	case ViewSettings:
		if m.settings != nil {
			var next settings.Model
			next, cmd = m.settings.Update(msg)
			m.settings = &next
		}
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("Work Calendar", m.connectionStatus(), theme.ConnectionStyle(m.state.String(), m.stale))
	statusBar := m.layout.RenderStatusBar(m.keyHints(), m.statusMsg)
	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

func (m Model) renderContent() string {
	switch m.currentView {
	case ViewForm:
		return m.form.View()
	case ViewReport:
		return m.reportView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewSettings:
		if m.settings != nil {
			return m.settings.View()
		}
		return ""
	default:
		return m.list.View()
	}
}

// connectionStatus describes the session for the header badge.
func (m Model) connectionStatus() string {
	switch {
	case m.stale:
		return "⚠ stale data"
	case m.state == client.StateSynced:
		return "● live"
	case m.state == client.StateDegraded:
		return "◐ polling"
	default:
		return fmt.Sprintf("○ %s", m.state)
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewForm, ViewSettings:
		return "enter submit | esc cancel"
	case ViewReport:
		return "w week | m month | ←/→ previous/next | esc back"
	default:
		return m.helpView.ShortView()
	}
}

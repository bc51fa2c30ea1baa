// Package settings is the connection settings view: it edits the server URL
// and API token, checks them against the server and saves them.
package settings

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workcal/internal/theme"
)

// Mode represents the current sub-state of the settings view.
type Mode int

const (
	ModeForm Mode = iota
	ModeValidating
	ModeResult
)

const checkTimeout = 10 * time.Second

// Checker verifies that serverURL answers with token.
type Checker func(ctx context.Context, serverURL, token string) error

// Saver persists the settings once they have been checked.
type Saver func(serverURL, token string) error

// DoneMsg is dispatched when the user leaves the settings view.
type DoneMsg struct {
	Saved     bool
	ServerURL string
}

type checkResultMsg struct {
	err error
}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	serverURL string
	token     string
}

// Model is the Bubble Tea model for the settings view.
type Model struct {
	mode    Mode
	form    *huh.Form
	fb      *formBindings
	spinner spinner.Model
	check   Checker
	save    Saver
	err     error
	width   int
	height  int
}

// New creates a settings view that checks with check and saves with save.
func New(check Checker, save Saver, width, height int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)
	return Model{
		fb:      &formBindings{},
		spinner: sp,
		check:   check,
		save:    save,
		width:   width,
		height:  height,
	}
}

// Start opens the form prefilled with the current settings.
func (m *Model) Start(serverURL, token string) tea.Cmd {
	m.mode = ModeForm
	m.err = nil
	m.fb.serverURL = serverURL
	m.fb.token = token
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server URL").
				Description("Base URL of the workcal server").
				Placeholder("http://localhost:3000").
				Value(&m.fb.serverURL).
				Validate(validateURL),
			huh.NewInput().
				Title("API Token").
				Description("Leave empty if the server does not require one").
				EchoMode(huh.EchoModePassword).
				Value(&m.fb.token),
		),
	).WithWidth(m.formWidth())
	return m.form.Init()
}

// Mode returns the current sub-state.
func (m Model) Mode() Mode { return m.mode }

// Update handles messages for the settings view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case checkResultMsg:
		m.mode = ModeResult
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		if m.mode != ModeValidating {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.mode == ModeResult {
			switch msg.String() {
			case "enter", "esc":
				done := DoneMsg{Saved: m.err == nil, ServerURL: m.serverURL()}
				return m, func() tea.Msg { return done }
			}
			return m, nil
		}
	}

	if m.mode != ModeForm || m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.mode = ModeValidating
		return m, tea.Batch(m.spinner.Tick, m.checkAndSave(m.serverURL(), strings.TrimSpace(m.fb.token)))
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return DoneMsg{} }
	}

	return m, cmd
}

func (m Model) serverURL() string {
	return strings.TrimRight(strings.TrimSpace(m.fb.serverURL), "/")
}

func (m Model) checkAndSave(serverURL, token string) tea.Cmd {
	check, save := m.check, m.save
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()
		if err := check(ctx, serverURL, token); err != nil {
			return checkResultMsg{err: fmt.Errorf("connection check failed: %w", err)}
		}
		if err := save(serverURL, token); err != nil {
			return checkResultMsg{err: fmt.Errorf("saving settings: %w", err)}
		}
		return checkResultMsg{}
	}
}

// View renders the settings view.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Connection Settings")

	var body string
	switch m.mode {
	case ModeForm:
		if m.form != nil {
			body = m.form.View()
		}
	case ModeValidating:
		body = fmt.Sprintf("%s Checking %s...", m.spinner.View(), m.serverURL())
	case ModeResult:
		if m.err != nil {
			body = theme.ErrorStyle.Render("✗ "+m.err.Error()) + "\n\n" +
				theme.HelpStyle.Render("Nothing was saved. Press enter to go back.")
		} else {
			body = lipgloss.NewStyle().Foreground(theme.ColorGreen).Render("✓ Connected to "+m.serverURL()) + "\n\n" +
				theme.HelpStyle.Render("Settings saved. Restart workcal to use them. Press enter to go back.")
		}
	}

	return lipgloss.NewStyle().Padding(1, 2).Render(title + "\n" + body)
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	return min(max(m.width-4, 40), 100)
}

func validateURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("URL is required")
	}
	parsed, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" || parsed.Host == "" {
		return fmt.Errorf("URL must be http(s) with a host (e.g., http://localhost:3000)")
	}
	return nil
}

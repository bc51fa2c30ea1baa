package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/workcal/internal/theme"
)

// Layout holds the terminal dimensions and the fixed chrome around the
// content area.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with a one-line header and status bar.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentHeight returns the height left for the main content area.
func (l Layout) ContentHeight() int {
	h := l.Height - l.HeaderHeight - l.StatusBarHeight
	if h < 0 {
		return 0
	}
	return h
}

// RenderHeader renders the title on the left and the connection badge on
// the right, with the header background filling the gap.
func (l Layout) RenderHeader(title, connection string, style lipgloss.Style) string {
	titleRendered := theme.HeaderStyle.Render(title)
	badge := style.
		Background(theme.HeaderStyle.GetBackground()).
		Render(connection)

	gap := l.Width - lipgloss.Width(titleRendered) - lipgloss.Width(badge)
	if gap < 0 {
		gap = 0
	}
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.HeaderStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, titleRendered, filler, badge)
}

// RenderStatusBar renders the bottom bar: hints, or msg when set.
func (l Layout) RenderStatusBar(hints, msg string) string {
	text := hints
	if msg != "" {
		text = msg
	}
	rendered := theme.StatusBarStyle.Render(text)

	gap := l.Width - lipgloss.Width(rendered)
	if gap < 0 {
		gap = 0
	}
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(theme.StatusBarStyle.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, rendered, filler)
}

// RenderWithFrame stacks header, content and status bar.
func (l Layout) RenderWithFrame(header, content, statusBar string) string {
	content = lipgloss.NewStyle().Height(l.ContentHeight()).MaxHeight(l.ContentHeight()).Render(content)
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}

// Package sync runs a client Session in the background of the terminal UI
// and turns its updates into Bubble Tea messages.
package sync

import (
	"context"
	gosync "sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/workcal/internal/client"
)

// SessionMsg is a tea.Msg carrying the latest session update.
type SessionMsg struct {
	client.Update
}

// SessionEndedMsg is sent once when the session's Run loop returns.
type SessionEndedMsg struct {
	Err error
}

// Session is the part of client.Session the driver needs.
type Session interface {
	Run(ctx context.Context) error
	Updates() <-chan client.Update
	Connect()
	Close()
}

// Driver owns the goroutine running the session.
type Driver struct {
	session Session
	ended   chan error
	cancel  context.CancelFunc
	mu      gosync.Mutex
	running bool
}

// New creates a driver for s. Nothing runs until Start.
func New(s Session) *Driver {
	return &Driver{
		session: s,
		ended:   make(chan error, 1),
	}
}

// Start launches the session and returns the command that delivers its
// first update. Calling Start again is a no-op.
func (d *Driver) Start() tea.Cmd {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = true
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.mu.Unlock()

	go func() {
		d.ended <- d.session.Run(ctx)
	}()

	return d.WaitForNextUpdate()
}

// Stop closes the session. Mutations already sent are not affected.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return
	}
	d.session.Close()
	d.cancel()
	d.running = false
}

// Reconnect asks the session to retry the push channel immediately.
func (d *Driver) Reconnect() {
	d.session.Connect()
}

// WaitForNextUpdate returns a tea.Cmd that blocks until the next session
// update, or until the session ends. Call it again after handling each
// SessionMsg to keep listening.
func (d *Driver) WaitForNextUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case u := <-d.session.Updates():
			return SessionMsg{Update: u}
		case err := <-d.ended:
			return SessionEndedMsg{Err: err}
		}
	}
}

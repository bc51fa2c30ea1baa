package app

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/workcal/internal/client"
	"github.com/nhle/workcal/internal/model"
)

// mutationTimeout bounds a single one-shot request from the UI.
const mutationTimeout = 20 * time.Second

// Mutator sends one-shot mutations. *client.Client implements it.
type Mutator interface {
	Create(ctx context.Context, date, content string) (model.Record, error)
	SetCompleted(ctx context.Context, id string, completed bool) error
	Delete(ctx context.Context, id string) error
}

// mutationResultMsg reports the outcome of a one-shot mutation. The list
// itself is only ever updated by the next snapshot.
type mutationResultMsg struct {
	op  string
	err error
}

func (r mutationResultMsg) status() string {
	switch {
	case r.err == nil:
		return r.op + " saved"
	case client.IsNotFound(r.err):
		return r.op + ": item no longer exists"
	case client.IsRetryable(r.err):
		return r.op + " failed, server unavailable; try again"
	default:
		return r.op + " failed: " + r.err.Error()
	}
}

func (m Model) createRecord(date, content string) tea.Cmd {
	mut := m.mutator
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mutationTimeout)
		defer cancel()

		rec, err := mut.Create(ctx, date, content)
		if err != nil {
			slog.Error("create failed", "err", err)
		} else {
			slog.Info("created", "id", rec.ID)
		}
		return mutationResultMsg{op: "create", err: err}
	}
}

func (m Model) setCompleted(id string, completed bool) tea.Cmd {
	mut := m.mutator
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mutationTimeout)
		defer cancel()

		err := mut.SetCompleted(ctx, id, completed)
		if err != nil {
			slog.Error("update failed", "id", id, "err", err)
		}
		return mutationResultMsg{op: "update", err: err}
	}
}

func (m Model) deleteRecord(id string) tea.Cmd {
	mut := m.mutator
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), mutationTimeout)
		defer cancel()

		err := mut.Delete(ctx, id)
		if err != nil {
			slog.Error("delete failed", "id", id, "err", err)
		}
		return mutationResultMsg{op: "delete", err: err}
	}
}

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/workcal/internal/model"
)

type fakeCommander struct {
	records []model.Record
	calls   []string
}

func (f *fakeCommander) List(context.Context) (model.Snapshot, error) {
	return model.Snapshot{Version: 1, Records: f.records}, nil
}

func (f *fakeCommander) Create(_ context.Context, date, content string) (model.Record, error) {
	f.calls = append(f.calls, "create "+date+" "+content)
	return model.Record{ID: "r1", Date: date, Content: content}, nil
}

func (f *fakeCommander) SetCompleted(_ context.Context, id string, completed bool) error {
	if completed {
		f.calls = append(f.calls, "done "+id)
	} else {
		f.calls = append(f.calls, "undo "+id)
	}
	return nil
}

func (f *fakeCommander) Delete(_ context.Context, id string) error {
	f.calls = append(f.calls, "rm "+id)
	return nil
}

func TestRunCommandMutations(t *testing.T) {
	c := &fakeCommander{}
	var out bytes.Buffer

	require.NoError(t, runCommand(c, []string{"add", "2024-01-08", "write", "report"}, &out))
	require.NoError(t, runCommand(c, []string{"done", "r1"}, &out))
	require.NoError(t, runCommand(c, []string{"undo", "r1"}, &out))
	require.NoError(t, runCommand(c, []string{"rm", "r1"}, &out))

	assert.Equal(t, []string{"create 2024-01-08 write report", "done r1", "undo r1", "rm r1"}, c.calls)
	assert.Equal(t, "added r1\nupdated r1\nupdated r1\ndeleted r1\n", out.String())
}

func TestRunCommandUsage(t *testing.T) {
	c := &fakeCommander{}
	var out bytes.Buffer

	assert.Error(t, runCommand(c, []string{"add", "2024-01-08"}, &out))
	assert.Error(t, runCommand(c, []string{"done"}, &out))
	assert.Error(t, runCommand(c, []string{"rm", "a", "b"}, &out))
	assert.ErrorContains(t, runCommand(c, []string{"frobnicate"}, &out), `unknown command "frobnicate"`)
	assert.Empty(t, c.calls)
}

func TestRunCommandList(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runCommand(&fakeCommander{}, []string{"list"}, &out))
	assert.Equal(t, "no work items\n", out.String())

	out.Reset()
	c := &fakeCommander{records: []model.Record{
		{ID: "a", Date: "2024-01-08", Content: "write report", Completed: true},
		{ID: "b", Date: "2024-01-09", Content: "review"},
	}}
	require.NoError(t, runCommand(c, []string{"ls"}, &out))
	assert.Equal(t, "[x] a  2024-01-08  write report\n[ ] b  2024-01-09  review\n", out.String())
}

func TestRunReport(t *testing.T) {
	c := &fakeCommander{records: []model.Record{
		{ID: "a", Date: "2024-01-08", Content: "write report", Completed: true},
		{ID: "b", Date: "2024-01-20", Content: "later"},
	}}

	var out bytes.Buffer
	require.NoError(t, runCommand(c, []string{"report", "--date", "2024-01-10"}, &out))
	assert.Equal(t, "Weekly Report (Jan 7 - Jan 13, 2024)\n\nMonday, Jan 8:\n- [x] write report\n\n", out.String())

	out.Reset()
	require.NoError(t, runCommand(c, []string{"report", "--month", "--date", "2024-01-10"}, &out))
	assert.Contains(t, out.String(), "Monthly Report (January 2024)")
	assert.Contains(t, out.String(), "January 20:\n- [ ] later\n")

	assert.Error(t, runCommand(c, []string{"report", "--date", "10/01/2024"}, &out))
}

func TestRunConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workcal", "config.yaml")
	var out bytes.Buffer

	require.NoError(t, runConfig(path, []string{"init"}, &out))
	assert.Contains(t, out.String(), path)

	cfg, err := model.LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultAppConfig().Server.Addr, cfg.Server.Addr)

	assert.ErrorContains(t, runConfig(path, []string{"init"}, &out), "already exists")
	assert.NoError(t, runConfig(path, []string{"init", "--force"}, &out))
	assert.Error(t, runConfig(path, []string{"show"}, &out))
}

package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/workcal/internal/client"
	"github.com/nhle/workcal/internal/model"
)

type fakeSession struct {
	updates  chan client.Update
	runs     atomic.Int32
	connects atomic.Int32
	closes   atomic.Int32
	runErr   error
}

func newFakeSession() *fakeSession {
	return &fakeSession{updates: make(chan client.Update, 1)}
}

func (f *fakeSession) Run(ctx context.Context) error {
	f.runs.Add(1)
	<-ctx.Done()
	return f.runErr
}

func (f *fakeSession) Updates() <-chan client.Update { return f.updates }
func (f *fakeSession) Connect()                      { f.connects.Add(1) }
func (f *fakeSession) Close()                        { f.closes.Add(1) }

func TestDriverDeliversUpdates(t *testing.T) {
	s := newFakeSession()
	d := New(s)

	cmd := d.Start()
	require.NotNil(t, cmd)
	assert.Nil(t, d.Start())

	s.updates <- client.Update{
		State:    client.StateSynced,
		Snapshot: model.Snapshot{Version: 1, Records: []model.Record{{ID: "a"}}},
	}
	msg, ok := cmd().(SessionMsg)
	require.True(t, ok)
	assert.Equal(t, client.StateSynced, msg.State)
	assert.Len(t, msg.Snapshot.Records, 1)

	d.Stop()
	d.Stop()
	assert.Equal(t, int32(1), s.runs.Load())
	assert.Equal(t, int32(1), s.closes.Load())
}

func TestDriverReportsEnd(t *testing.T) {
	s := newFakeSession()
	s.runErr = errors.New("boom")
	d := New(s)

	d.Start()
	d.Stop()

	msg, ok := d.WaitForNextUpdate()().(SessionEndedMsg)
	require.True(t, ok)
	assert.EqualError(t, msg.Err, "boom")
}

func TestDriverReconnect(t *testing.T) {
	s := newFakeSession()
	d := New(s)
	d.Reconnect()
	assert.Equal(t, int32(1), s.connects.Load())
}

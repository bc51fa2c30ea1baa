package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/workcal/internal/model"
)

func snapAt(v uint64) model.Snapshot {
	return model.Snapshot{Version: v, Records: []model.Record{}}
}

func TestSnapshotQueueFIFO(t *testing.T) {
	q := newSnapshotQueue(3)
	q.push(snapAt(1))
	q.push(snapAt(2))

	s, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, uint64(1), s.Version)
	s, ok = q.pop()
	require.True(t, ok)
	assert.Equal(t, uint64(2), s.Version)

	_, ok = q.pop()
	assert.False(t, ok)
}

func TestSnapshotQueueDropsOldest(t *testing.T) {
	q := newSnapshotQueue(2)
	assert.False(t, q.push(snapAt(1)))
	assert.False(t, q.push(snapAt(2)))
	assert.True(t, q.push(snapAt(3)))
	assert.True(t, q.push(snapAt(4)))

	assert.Equal(t, 2, q.len())
	assert.Equal(t, uint64(2), q.droppedCount())

	s, _ := q.pop()
	assert.Equal(t, uint64(3), s.Version)
	s, _ = q.pop()
	assert.Equal(t, uint64(4), s.Version)
}

func TestSnapshotQueueMinimumDepth(t *testing.T) {
	q := newSnapshotQueue(0)
	q.push(snapAt(1))
	q.push(snapAt(2))

	assert.Equal(t, 1, q.len())
	s, _ := q.pop()
	assert.Equal(t, uint64(2), s.Version)
}

func TestSnapshotQueueReadyToken(t *testing.T) {
	q := newSnapshotQueue(4)
	q.push(snapAt(1))
	q.push(snapAt(2))

	// Pushes coalesce into a single wake-up.
	assert.Len(t, q.ready, 1)
}

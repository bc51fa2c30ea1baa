package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/workcal/internal/model"
)

// fakeSink records delivered snapshots. While gate is non-nil each Send
// blocks until gate is closed.
type fakeSink struct {
	mu      sync.Mutex
	got     []model.Snapshot
	gate    chan struct{}
	err     error
	entered chan struct{}
	sends   chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		entered: make(chan struct{}, 64),
		sends:   make(chan struct{}, 64),
	}
}

func (f *fakeSink) Send(ctx context.Context, snap model.Snapshot) error {
	f.entered <- struct{}{}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.got = append(f.got, snap)
	err := f.err
	f.mu.Unlock()
	f.sends <- struct{}{}
	return err
}

func (f *fakeSink) versions() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, len(f.got))
	for i, s := range f.got {
		out[i] = s.Version
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(initial model.Snapshot, opts ...Option) *Hub {
	h := New(initial, append([]Option{WithLogger(quietLogger())}, opts...)...)
	return h
}

func waitSends(t *testing.T, f *fakeSink, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.sends:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for send %d of %d", i+1, n)
		}
	}
}

func TestSubscribeReceivesCurrentSnapshot(t *testing.T) {
	initial := model.Snapshot{
		Version: 3,
		Records: []model.Record{{ID: "a", Date: "2024-01-01", Content: "existing"}},
	}
	h := newTestHub(initial)
	defer h.Close()

	sink := newFakeSink()
	_, err := h.Subscribe(sink)
	require.NoError(t, err)

	waitSends(t, sink, 1)
	assert.Equal(t, []uint64{3}, sink.versions())
	assert.Equal(t, 1, h.Count())
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	h := newTestHub(snapAt(0))
	defer h.Close()

	sinks := []*fakeSink{newFakeSink(), newFakeSink(), newFakeSink()}
	for _, s := range sinks {
		_, err := h.Subscribe(s)
		require.NoError(t, err)
		waitSends(t, s, 1)
	}

	h.Publish(snapAt(1))
	for _, s := range sinks {
		waitSends(t, s, 1)
		assert.Equal(t, []uint64{0, 1}, s.versions())
	}
	assert.Equal(t, uint64(1), h.Latest().Version)
}

func TestPublishIgnoresOlderSnapshot(t *testing.T) {
	h := newTestHub(snapAt(0))
	defer h.Close()

	sink := newFakeSink()
	_, err := h.Subscribe(sink)
	require.NoError(t, err)
	waitSends(t, sink, 1)

	h.Publish(snapAt(5))
	waitSends(t, sink, 1)
	h.Publish(snapAt(4))
	h.Publish(snapAt(6))
	waitSends(t, sink, 1)

	assert.Equal(t, []uint64{0, 5, 6}, sink.versions())
	assert.Equal(t, uint64(6), h.Latest().Version)
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	h := newTestHub(snapAt(0), WithQueueDepth(2), WithWriteTimeout(5*time.Second))
	defer h.Close()

	slow := newFakeSink()
	slow.gate = make(chan struct{})
	fast := newFakeSink()

	slowSub, err := h.Subscribe(slow)
	require.NoError(t, err)
	_, err = h.Subscribe(fast)
	require.NoError(t, err)
	waitSends(t, fast, 1)

	// Park the slow writer inside Send with snapshot 0; the queue behind
	// it holds at most two entries.
	select {
	case <-slow.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("slow writer never started")
	}
	for v := uint64(1); v <= 5; v++ {
		h.Publish(snapAt(v))
	}

	// The stuck subscriber does not hold back the others.
	assert.Eventually(t, func() bool {
		v := fast.versions()
		return len(v) > 0 && v[len(v)-1] == 5
	}, 2*time.Second, 5*time.Millisecond)

	close(slow.gate)
	waitSends(t, slow, 3)
	assert.Equal(t, []uint64{0, 4, 5}, slow.versions())
	assert.Equal(t, uint64(3), slowSub.Dropped())
}

func TestSinkErrorRemovesSubscriber(t *testing.T) {
	h := newTestHub(snapAt(0))
	defer h.Close()

	broken := newFakeSink()
	broken.err = errors.New("connection reset")
	sub, err := h.Subscribe(broken)
	require.NoError(t, err)

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end")
	}
	assert.EqualError(t, sub.Err(), "connection reset")
	assert.Equal(t, 0, h.Count())

	// Publishing to an empty hub is fine.
	h.Publish(snapAt(1))
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	h := newTestHub(snapAt(0))
	defer h.Close()

	sink := newFakeSink()
	sub, err := h.Subscribe(sink)
	require.NoError(t, err)
	waitSends(t, sink, 1)

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)
	h.Unsubscribe(nil)

	assert.Equal(t, 0, h.Count())
	assert.NoError(t, sub.Err())

	h.Publish(snapAt(1))
	assert.Equal(t, []uint64{0}, sink.versions())
}

func TestCloseEndsSubscriptions(t *testing.T) {
	h := newTestHub(snapAt(0))

	sink := newFakeSink()
	sub, err := h.Subscribe(sink)
	require.NoError(t, err)
	waitSends(t, sink, 1)

	h.Close()
	h.Close()

	select {
	case <-sub.Done():
	default:
		t.Fatal("subscription still open after Close")
	}
	assert.Equal(t, 0, h.Count())

	_, err = h.Subscribe(newFakeSink())
	assert.ErrorIs(t, err, ErrClosed)

	h.Publish(snapAt(1))
	assert.Equal(t, uint64(0), h.Latest().Version)
}

func TestWriteTimeoutEndsStuckSubscriber(t *testing.T) {
	h := newTestHub(snapAt(0), WithWriteTimeout(20*time.Millisecond))
	defer h.Close()

	stuck := newFakeSink()
	stuck.gate = make(chan struct{})
	sub, err := h.Subscribe(stuck)
	require.NoError(t, err)

	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("stuck subscriber was not removed")
	}
	assert.ErrorIs(t, sub.Err(), context.DeadlineExceeded)
}

// growingSnapshot returns the state after n creates: version n, n records.
func growingSnapshot(n int) model.Snapshot {
	recs := make([]model.Record, n)
	for i := range recs {
		recs[i] = model.Record{ID: fmt.Sprintf("r%d", i), Date: "2024-01-08", Content: fmt.Sprintf("item %d", i)}
	}
	return model.Snapshot{Version: uint64(n), Records: recs}
}

func TestJoinDuringPublishSeesWholeState(t *testing.T) {
	const (
		publishes = 50
		joiners   = 20
	)
	h := newTestHub(growingSnapshot(0), WithQueueDepth(2))
	defer h.Close()

	sinks := make([]*fakeSink, joiners)
	for i := range sinks {
		sinks[i] = newFakeSink()
		sinks[i].entered = make(chan struct{}, publishes+1)
		sinks[i].sends = make(chan struct{}, publishes+1)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for n := 1; n <= publishes; n++ {
			h.Publish(growingSnapshot(n))
		}
	}()
	for _, sink := range sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Subscribe(sink)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for i, sink := range sinks {
		require.Eventually(t, func() bool {
			v := sink.versions()
			return len(v) > 0 && v[len(v)-1] == publishes
		}, 2*time.Second, 5*time.Millisecond, "joiner %d never reached the final state", i)

		sink.mu.Lock()
		first := sink.got[0]
		for _, snap := range sink.got {
			assert.Len(t, snap.Records, int(snap.Version), "joiner %d got a torn snapshot", i)
		}
		sink.mu.Unlock()
		assert.Equal(t, growingSnapshot(int(first.Version)), first)
	}
}

// Package hub fans record snapshots out to every live push-channel
// subscriber.
//
// The hub owns the only references to live subscriptions. Mutation code
// calls Publish and never touches a connection. Each subscriber has its own
// bounded outbound queue drained by its own writer goroutine, so a slow
// subscriber only ever delays itself: when its queue is full the oldest
// queued snapshot is dropped in favour of the newest.
//
// Snapshots are full state, so no sequencing is needed beyond one rule:
// Publish ignores a snapshot older than the last one it accepted, which
// keeps two racing mutations from announcing superseded state last.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/workcal/internal/model"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("hub closed")

// Sink delivers one snapshot to one connection. Send is only ever called
// from the subscription's writer goroutine, never concurrently with itself.
type Sink interface {
	Send(ctx context.Context, snap model.Snapshot) error
}

// Subscription is a live connection registered with the hub.
type Subscription struct {
	ID       string
	JoinedAt time.Time

	sink  Sink
	queue *snapshotQueue
	done  chan struct{}
	once  sync.Once
	err   error
}

// Done is closed when the subscription ends, either through Unsubscribe or
// because its sink failed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns the sink error that ended the subscription, if any.
func (s *Subscription) Err() error {
	<-s.done
	return s.err
}

// Dropped returns how many queued snapshots were discarded because the
// subscriber fell behind.
func (s *Subscription) Dropped() uint64 { return s.queue.droppedCount() }

func (s *Subscription) stop(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}

// Hub is the broadcast service. Create one per process with New and share
// it between request handlers.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	latest model.Snapshot
	closed bool

	queueDepth   int
	writeTimeout time.Duration
	logger       *slog.Logger

	wg sync.WaitGroup
}

// Option configures a Hub.
type Option func(*Hub)

// WithQueueDepth sets the per-subscriber outbound queue length.
func WithQueueDepth(n int) Option {
	return func(h *Hub) { h.queueDepth = n }
}

// WithWriteTimeout bounds a single Sink.Send call.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Hub) { h.writeTimeout = d }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// New creates a hub whose current state is initial. Subscribers that join
// before the first Publish receive initial.
func New(initial model.Snapshot, opts ...Option) *Hub {
	h := &Hub{
		subs:         make(map[string]*Subscription),
		latest:       initial,
		queueDepth:   4,
		writeTimeout: 5 * time.Second,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Subscribe registers sink and immediately queues the current snapshot for
// it, so a subscriber never waits for the next mutation to learn the state.
func (h *Hub) Subscribe(sink Sink) (*Subscription, error) {
	sub := &Subscription{
		ID:       uuid.New().String(),
		JoinedAt: time.Now(),
		sink:     sink,
		queue:    newSnapshotQueue(h.queueDepth),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.subs[sub.ID] = sub
	sub.queue.push(h.latest)
	count := len(h.subs)
	h.wg.Add(1)
	h.mu.Unlock()

	go h.writeLoop(sub)

	h.logger.Info("subscriber joined", "subscriber", sub.ID, "subscribers", count)
	return sub, nil
}

// Unsubscribe removes sub. It is safe to call more than once and after the
// subscription already ended.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.remove(sub, nil)
}

func (h *Hub) remove(sub *Subscription, err error) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	_, ok := h.subs[sub.ID]
	delete(h.subs, sub.ID)
	count := len(h.subs)
	h.mu.Unlock()

	sub.stop(err)

	if ok {
		attrs := []any{"subscriber", sub.ID, "subscribers", count, "connected_for", time.Since(sub.JoinedAt).Round(time.Millisecond)}
		if err != nil {
			attrs = append(attrs, "err", err)
		}
		h.logger.Info("subscriber left", attrs...)
	}
}

// Publish queues snap for every current subscriber without blocking on any
// of them. A snapshot older than the latest accepted one is ignored.
func (h *Hub) Publish(snap model.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	if snap.Version < h.latest.Version {
		h.logger.Debug("stale snapshot ignored", "version", snap.Version, "latest", h.latest.Version)
		return
	}
	h.latest = snap

	for _, sub := range h.subs {
		if sub.queue.push(snap) {
			h.logger.Debug("subscriber behind, dropped oldest snapshot", "subscriber", sub.ID)
		}
	}
}

// Latest returns the most recently accepted snapshot.
func (h *Hub) Latest() model.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// Count returns the number of live subscriptions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription and waits for their writers to exit.
// Subscribe fails afterwards and Publish becomes a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.subs = make(map[string]*Subscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.stop(nil)
	}
	h.wg.Wait()
}

// writeLoop drains one subscriber's queue into its sink.
func (h *Hub) writeLoop(sub *Subscription) {
	defer h.wg.Done()

	for {
		select {
		case <-sub.done:
			return
		case <-sub.queue.ready:
		}

		for {
			snap, ok := sub.queue.pop()
			if !ok {
				break
			}

			ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
			err := sub.sink.Send(ctx, snap)
			cancel()
			if err != nil {
				h.remove(sub, err)
				return
			}

			select {
			case <-sub.done:
				return
			default:
			}
		}
	}
}

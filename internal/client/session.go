package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nhle/workcal/internal/model"
)

// State is the connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSynced
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSynced:
		return "synced"
	case StateDegraded:
		return "degraded"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ChannelError records a failed push-channel dial or a dropped channel. It
// is handled inside the Session and only ever logged.
type ChannelError struct {
	Attempt int
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("push channel attempt %d: %v", e.Attempt, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// Update is the session state handed to the UI.
type Update struct {
	State    State
	Snapshot model.Snapshot

	// Stale is set when the last poll failed while Degraded; Snapshot may
	// then be older than one poll interval. Err holds that poll failure.
	Stale bool
	Err   error
}

// Poller fetches the full list over the one-shot request path.
type Poller interface {
	List(ctx context.Context) (model.Snapshot, error)
}

// Session keeps a local copy of the list in sync with the server. Every
// snapshot received, pushed or polled, replaces the local copy wholesale.
type Session struct {
	dialer Dialer
	poller Poller
	cfg    model.ClientConfig
	logger *slog.Logger

	backoff *backoff

	mu      sync.Mutex
	state   State
	snap    model.Snapshot
	stale   bool
	lastErr error
	channel Channel

	updates    chan Update
	connectReq chan struct{}
	closed     chan struct{}
	closeOnce  sync.Once
}

// NewSession creates a session using dialer for the push channel and poller
// for Degraded mode. Run must be called to start it.
func NewSession(dialer Dialer, poller Poller, cfg model.ClientConfig, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConnectAttempts < 1 {
		cfg.MaxConnectAttempts = 1
	}
	return &Session{
		dialer:     dialer,
		poller:     poller,
		cfg:        cfg,
		logger:     logger,
		backoff:    newBackoff(cfg.BackoffInitial, cfg.BackoffMax),
		updates:    make(chan Update, 1),
		connectReq: make(chan struct{}, 1),
		closed:     make(chan struct{}),
	}
}

// Updates delivers state changes. Only the latest undelivered update is
// kept, so a slow reader skips intermediate states but never misses the
// current one.
func (s *Session) Updates() <-chan Update { return s.updates }

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the local copy of the list.
func (s *Session) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Clone()
}

// Connect asks the session to try the push channel now instead of waiting
// out its current backoff or retry timer. It is a no-op while a channel is
// established.
func (s *Session) Connect() {
	s.mu.Lock()
	established := s.channel != nil
	s.mu.Unlock()
	if established {
		return
	}
	select {
	case s.connectReq <- struct{}{}:
	default:
	}
}

// Close stops the session: the push channel is closed and polling stops.
// Mutations sent through a Client are unaffected.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// Run drives the state machine until ctx is canceled or Close is called.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.closed:
			cancel()
		case <-ctx.Done():
		}
	}()
	defer s.setState(StateDisconnected)

	var (
		ch       Channel
		attempts int
		drops    []time.Time
	)
	for {
		if ctx.Err() != nil {
			return s.exitErr(ctx)
		}

		if ch == nil {
			s.setState(StateConnecting)
			dialed, err := s.dialer.Dial(ctx)
			switch {
			case err == nil:
				ch = dialed
			case ctx.Err() != nil:
				return s.exitErr(ctx)
			default:
				attempts++
				s.logger.Warn("push channel unavailable", "err", &ChannelError{Attempt: attempts, Err: err})
				if attempts < s.cfg.MaxConnectAttempts {
					if !s.wait(ctx, s.backoff.Next()) {
						return s.exitErr(ctx)
					}
					continue
				}
				if ch = s.degrade(ctx); ch == nil {
					return s.exitErr(ctx)
				}
				drops = nil
				s.setState(StateConnecting)
			}
			attempts = 0
		}

		err := s.listen(ctx, ch)
		ch = nil
		if ctx.Err() != nil {
			return s.exitErr(ctx)
		}

		now := time.Now()
		drops = append(pruneBefore(drops, now.Add(-s.cfg.FailureWindow)), now)
		s.logger.Warn("push channel dropped", "err", &ChannelError{Attempt: len(drops), Err: err})

		if s.cfg.FailureThreshold > 0 && len(drops) >= s.cfg.FailureThreshold {
			if ch = s.degrade(ctx); ch == nil {
				return s.exitErr(ctx)
			}
			drops = nil
			s.setState(StateConnecting)
			continue
		}

		s.setState(StateConnecting)
		if !s.wait(ctx, s.backoff.Next()) {
			return s.exitErr(ctx)
		}
	}
}

// listen applies every snapshot pushed on ch until it fails. The first
// snapshot moves the session to Synced.
func (s *Session) listen(ctx context.Context, ch Channel) error {
	s.mu.Lock()
	s.channel = ch
	s.mu.Unlock()

	done := make(chan struct{})
	defer func() {
		close(done)
		_ = ch.Close()
		s.mu.Lock()
		s.channel = nil
		s.mu.Unlock()
	}()
	go func() {
		select {
		case <-ctx.Done():
			_ = ch.Close()
		case <-done:
		}
	}()

	first := true
	for {
		snap, err := ch.Next()
		if err != nil {
			return err
		}
		if first {
			s.backoff.Reset()
			s.logger.Info("push channel synced", "version", snap.Version, "records", len(snap.Records))
			first = false
		}
		s.apply(snap, StateSynced)
	}
}

// degrade polls the one-shot path every PollInterval while retrying the push
// channel every BackoffMax. It returns the re-established channel, or nil
// when the session is shutting down. Polling has stopped when it returns.
func (s *Session) degrade(ctx context.Context) Channel {
	s.setState(StateDegraded)
	s.logger.Warn("push channel down, polling", "interval", s.cfg.PollInterval)
	s.poll(ctx)

	pollTicker := time.NewTicker(s.cfg.PollInterval)
	defer pollTicker.Stop()
	retryTicker := time.NewTicker(s.cfg.BackoffMax)
	defer retryTicker.Stop()

	var (
		dialing  chan dialResult
		attempts int
	)
	redial := func() {
		if dialing == nil {
			dialing = s.dialAsync(ctx)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if dialing != nil {
				go discard(dialing)
			}
			return nil
		case <-pollTicker.C:
			s.poll(ctx)
		case <-retryTicker.C:
			redial()
		case <-s.connectReq:
			redial()
		case r := <-dialing:
			dialing = nil
			if r.err != nil {
				attempts++
				s.logger.Debug("push channel retry failed", "err", &ChannelError{Attempt: attempts, Err: r.err})
				continue
			}
			s.logger.Info("push channel restored, polling stopped")
			return r.ch
		}
	}
}

type dialResult struct {
	ch  Channel
	err error
}

func (s *Session) dialAsync(ctx context.Context) chan dialResult {
	out := make(chan dialResult, 1)
	go func() {
		ch, err := s.dialer.Dial(ctx)
		out <- dialResult{ch: ch, err: err}
	}()
	return out
}

// discard closes a channel whose dial completed after nobody wanted it.
func discard(pending chan dialResult) {
	if r := <-pending; r.err == nil && r.ch != nil {
		_ = r.ch.Close()
	}
}

// poll fetches one snapshot. A failure marks the local copy stale but keeps
// the session running.
func (s *Session) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, s.cfg.PollInterval)
	defer cancel()

	snap, err := s.poller.List(pollCtx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("poll failed", "err", err)
		s.markStale(err)
		return
	}
	s.apply(snap, StateDegraded)
}

// wait sleeps for d, returning early on a Connect request. It returns false
// when the session is shutting down.
func (s *Session) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-s.connectReq:
		return true
	case <-t.C:
		return true
	}
}

func (s *Session) exitErr(ctx context.Context) error {
	select {
	case <-s.closed:
		return nil
	default:
		return ctx.Err()
	}
}

// apply replaces the local copy with snap.
func (s *Session) apply(snap model.Snapshot, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == state && !s.stale && s.snap.Version == snap.Version && s.snap.Equal(snap) {
		return
	}
	s.snap = snap.Clone()
	s.state = state
	s.stale = false
	s.lastErr = nil
	s.emitLocked()
}

func (s *Session) markStale(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stale = true
	s.lastErr = err
	s.emitLocked()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == state {
		return
	}
	s.logger.Debug("session state", "from", s.state, "to", state)
	s.state = state
	if state == StateSynced {
		s.stale = false
		s.lastErr = nil
	}
	s.emitLocked()
}

// emitLocked replaces any undelivered update with the current one. s.mu
// must be held, which makes the drain-then-send pair atomic among emitters.
func (s *Session) emitLocked() {
	u := Update{
		State:    s.state,
		Snapshot: s.snap.Clone(),
		Stale:    s.stale,
		Err:      s.lastErr,
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- u
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

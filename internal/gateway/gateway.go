// Package gateway validates mutation requests, applies them to the record
// store and hands the post-mutation snapshot to the broadcast hub.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/nhle/workcal/internal/model"
	"github.com/nhle/workcal/internal/store"
)

// maxContentLen caps a record's content, in runes.
const maxContentLen = 10_000

const (
	defaultHandOffAttempts = 5
	defaultHandOffDelay    = 100 * time.Millisecond
)

// Publisher receives every snapshot produced by a successful mutation.
type Publisher interface {
	Publish(snap model.Snapshot)
}

// Result is the outcome of a successful mutation.
type Result struct {
	// Record is the created record; nil for SetCompleted and Delete.
	Record *model.Record

	// Snapshot is the full list taken after the mutation committed. It is
	// the zero value when the post-commit read failed; the mutation still
	// happened and its snapshot is published once a retried read succeeds.
	Snapshot model.Snapshot

	// Replayed is true when a create was answered from the idempotency
	// cache. Nothing was written and nothing was published.
	Replayed bool
}

// Gateway is the single entry point for mutations.
type Gateway struct {
	store  store.Store
	pub    Publisher
	idem   *IdempotencyCache
	logger *slog.Logger

	handOffAttempts int
	handOffDelay    time.Duration
	pending         sync.WaitGroup
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithIdempotency enables Idempotency-Key deduplication of creates.
func WithIdempotency(c *IdempotencyCache) Option {
	return func(g *Gateway) { g.idem = c }
}

// WithHandOffRetry sets how often a failed post-commit snapshot read is
// retried, and the delay before the first retry. The delay doubles after
// every failure.
func WithHandOffRetry(attempts int, delay time.Duration) Option {
	return func(g *Gateway) {
		g.handOffAttempts = max(attempts, 1)
		g.handOffDelay = delay
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New creates a Gateway writing to s and publishing to pub.
func New(s store.Store, pub Publisher, opts ...Option) *Gateway {
	g := &Gateway{
		store:           s,
		pub:             pub,
		logger:          slog.Default(),
		handOffAttempts: defaultHandOffAttempts,
		handOffDelay:    defaultHandOffDelay,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Apply validates m, applies it and publishes the resulting snapshot.
//
// The store call runs detached from ctx cancellation: once a mutation has
// been accepted it completes even if the requester goes away, and its
// effect reaches everyone through the published snapshot.
func (g *Gateway) Apply(ctx context.Context, m model.Mutation) (Result, error) {
	if err := validate(m); err != nil {
		return Result{}, err
	}
	ctx = context.WithoutCancel(ctx)

	switch m.Kind {
	case model.MutationCreate:
		return g.create(ctx, m)
	case model.MutationSetCompleted:
		found, err := g.store.Update(ctx, m.ID, m.Completed)
		return g.finish(ctx, "update", m.ID, found, err)
	case model.MutationDelete:
		found, err := g.store.Delete(ctx, m.ID)
		return g.finish(ctx, "delete", m.ID, found, err)
	}
	return Result{}, Invalidf("unknown mutation kind %q", m.Kind)
}

// Create is shorthand for Apply with a create mutation.
func (g *Gateway) Create(ctx context.Context, date, content, idempotencyKey string) (Result, error) {
	return g.Apply(ctx, model.Mutation{
		Kind:           model.MutationCreate,
		Date:           date,
		Content:        content,
		IdempotencyKey: idempotencyKey,
	})
}

// SetCompleted is shorthand for Apply with a completion toggle.
func (g *Gateway) SetCompleted(ctx context.Context, id string, completed bool) (Result, error) {
	return g.Apply(ctx, model.Mutation{Kind: model.MutationSetCompleted, ID: id, Completed: completed})
}

// Delete is shorthand for Apply with a delete mutation.
func (g *Gateway) Delete(ctx context.Context, id string) (Result, error) {
	return g.Apply(ctx, model.Mutation{Kind: model.MutationDelete, ID: id})
}

// Snapshot reads the current list without mutating anything.
func (g *Gateway) Snapshot(ctx context.Context, order model.SortOrder) (model.Snapshot, error) {
	snap, err := g.store.Snapshot(ctx, order)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return model.Snapshot{}, err
		}
		return model.Snapshot{}, &StorageError{Op: "snapshot", Err: err}
	}
	return snap, nil
}

func (g *Gateway) create(ctx context.Context, m model.Mutation) (Result, error) {
	createFn := func() (model.Record, error) {
		return g.store.Create(ctx, m.Date, strings.TrimSpace(m.Content))
	}

	var (
		rec      model.Record
		replayed bool
		err      error
	)
	if g.idem != nil && m.IdempotencyKey != "" {
		rec, replayed, err = g.idem.Do(m.IdempotencyKey, createFn)
	} else {
		rec, err = createFn()
	}
	if err != nil {
		g.logger.Error("create failed", "err", err)
		return Result{}, &StorageError{Op: "create", Err: err}
	}

	if replayed {
		g.logger.Info("create replayed", "id", rec.ID, "idempotency_key", m.IdempotencyKey)
		return Result{Record: &rec, Replayed: true}, nil
	}

	res := g.publishAfterCommit(ctx, "create", rec.ID)
	res.Record = &rec
	return res, nil
}

// finish turns a store update/delete outcome into a Result.
func (g *Gateway) finish(ctx context.Context, op, id string, found bool, err error) (Result, error) {
	if err != nil {
		g.logger.Error(op+" failed", "id", id, "err", err)
		return Result{}, &StorageError{Op: op, Err: err}
	}
	if !found {
		g.logger.Info(op+" of unknown record", "id", id)
		return Result{}, ErrNotFound
	}
	return g.publishAfterCommit(ctx, op, id), nil
}

// publishAfterCommit reads the snapshot strictly after the mutation
// committed and hands it to the publisher exactly once. When the read fails
// the hand-off moves to a background retry; the hub discards it if a newer
// snapshot got there first.
func (g *Gateway) publishAfterCommit(ctx context.Context, op, id string) Result {
	snap, err := g.store.Snapshot(ctx, model.OrderOldestFirst)
	if err != nil {
		g.logger.Warn("post-commit snapshot failed, retrying in background", "op", op, "id", id, "err", err)
		g.pending.Add(1)
		go func() {
			defer g.pending.Done()
			g.retryHandOff(ctx, op, id)
		}()
		return Result{}
	}

	g.publish(snap, op, id)
	return Result{Snapshot: snap}
}

func (g *Gateway) retryHandOff(ctx context.Context, op, id string) {
	delay := g.handOffDelay
	for attempt := 1; attempt <= g.handOffAttempts; attempt++ {
		time.Sleep(delay)
		delay *= 2

		snap, err := g.store.Snapshot(ctx, model.OrderOldestFirst)
		if err == nil {
			g.publish(snap, op, id)
			return
		}
		g.logger.Warn("post-commit snapshot retry failed", "op", op, "id", id, "attempt", attempt, "err", err)
	}
	g.logger.Error("post-commit snapshot abandoned, subscribers wait for the next mutation", "op", op, "id", id)
}

func (g *Gateway) publish(snap model.Snapshot, op, id string) {
	if g.pub != nil {
		g.pub.Publish(snap)
	}
	g.logger.Debug("mutation published", "op", op, "id", id, "version", snap.Version, "records", len(snap.Records))
}

// Wait blocks until every background hand-off has finished.
func (g *Gateway) Wait() {
	g.pending.Wait()
}

func validate(m model.Mutation) error {
	switch m.Kind {
	case model.MutationCreate:
		if err := model.ValidateDate(m.Date); err != nil {
			return Invalidf("%v", err)
		}
		content := strings.TrimSpace(m.Content)
		if content == "" {
			return Invalidf("content is required")
		}
		if utf8.RuneCountInString(content) > maxContentLen {
			return Invalidf("content exceeds %d characters", maxContentLen)
		}
	case model.MutationSetCompleted, model.MutationDelete:
		if strings.TrimSpace(m.ID) == "" {
			return Invalidf("id is required")
		}
	default:
		return Invalidf("unknown mutation kind %q", m.Kind)
	}
	return nil
}

// Ping checks that the store is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.store.Ping(ctx)
}

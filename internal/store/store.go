package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/nhle/workcal/internal/model"
)

// Store is the authoritative record table. Mutations are serialized with
// respect to each other, and Snapshot never observes a mutation in progress.
type Store interface {
	// Create appends a new record with a server-assigned id and
	// completed=false.
	Create(ctx context.Context, date, content string) (model.Record, error)

	// Update sets the completion flag of the record with the given id and
	// reports whether it existed. A missing id is not an error.
	Update(ctx context.Context, id string, completed bool) (bool, error)

	// Delete removes the record with the given id and reports whether it
	// existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Snapshot returns every current record in the requested order together
	// with the version of the state it was taken from.
	Snapshot(ctx context.Context, order model.SortOrder) (model.Snapshot, error)

	// Ping checks that the backing storage is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// errIDExhausted is returned when the generator keeps producing ids that are
// already taken.
var errIDExhausted = errors.New("could not generate a unique record id")

// IDGenerator produces record ids. Stores retry on the rare collision, so
// generators only need to be unique with high probability.
type IDGenerator func() string

// NewUUID is the default IDGenerator (random UUIDv4).
func NewUUID() string {
	return uuid.New().String()
}

// maxIDAttempts bounds collision retries so a broken generator fails loudly
// instead of spinning.
const maxIDAttempts = 8

// Option configures a store.
type Option func(*options)

type options struct {
	newID IDGenerator
}

func buildOptions(opts []Option) options {
	o := options{newID: NewUUID}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// WithIDGenerator overrides the id generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(o *options) { o.newID = gen }
}

// Open returns the backend selected by cfg. The SQLite file's directory is
// created if needed.
func Open(cfg model.StoreConfig, opts ...Option) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(opts...), nil
	case "sqlite":
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		s, err := NewSQLiteStore(cfg.Path, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

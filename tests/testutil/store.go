package testutil

import (
	"context"
	"testing"

	"github.com/nhle/workcal/internal/model"
	"github.com/nhle/workcal/internal/store"
)

// NewTestStore creates an in-memory SQLiteStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T, opts ...store.Option) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:", opts...)
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// Seed creates one record per (date, content) pair, in order, and returns
// them.
func Seed(t *testing.T, s store.Store, pairs ...[2]string) []model.Record {
	t.Helper()

	out := make([]model.Record, 0, len(pairs))
	for _, p := range pairs {
		rec, err := s.Create(context.Background(), p[0], p[1])
		if err != nil {
			t.Fatalf("seeding %q: %v", p[1], err)
		}
		out = append(out, rec)
	}
	return out
}

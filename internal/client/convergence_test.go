package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/workcal/internal/api"
	"github.com/nhle/workcal/internal/gateway"
	"github.com/nhle/workcal/internal/hub"
	"github.com/nhle/workcal/internal/model"
	"github.com/nhle/workcal/internal/store"
)

func TestSessionConvergesUnderConcurrentMutations(t *testing.T) {
	const (
		creates = 40
		joiners = 10
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := store.NewMemoryStore()
	h := hub.New(model.Snapshot{Records: []model.Record{}}, hub.WithLogger(logger))
	g := gateway.New(s, h, gateway.WithLogger(logger))
	srv := httptest.NewServer(api.NewServer(g, h, api.Config{}, logger).Router())
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})

	dialer, err := NewWSDialer(srv.URL, "", time.Second)
	require.NoError(t, err)
	c := NewClient(srv.URL, "")
	session := NewSession(dialer, c, testClientConfig(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- session.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-runErr
	})
	require.Eventually(t, func() bool { return session.State() == StateSynced }, 2*time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	for i := range creates {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Create(context.Background(), "2024-01-08", fmt.Sprintf("item %d", i))
			assert.NoError(t, err)
		}()
	}
	for range joiners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch, err := dialer.Dial(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			defer ch.Close()
			first, err := ch.Next()
			if assert.NoError(t, err) {
				// Only creates run, so a whole state has one record per version.
				assert.Len(t, first.Records, int(first.Version))
			}
		}()
	}
	wg.Wait()

	final, err := s.Snapshot(context.Background(), model.OrderOldestFirst)
	require.NoError(t, err)
	require.Equal(t, uint64(creates), final.Version)
	require.Len(t, final.Records, creates)

	require.Eventually(t, func() bool {
		local := session.Snapshot()
		return local.Version == final.Version && local.Equal(final)
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateSynced, session.State())
}

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
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

// startServer runs the real HTTP surface over a memory store.
func startServer(t *testing.T, token string) (*httptest.Server, *hub.Hub) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := store.NewMemoryStore()
	h := hub.New(model.Snapshot{Records: []model.Record{}}, hub.WithLogger(logger))
	g := gateway.New(s, h, gateway.WithLogger(logger))
	srv := httptest.NewServer(api.NewServer(g, h, api.Config{AuthToken: token}, logger).Router())
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return srv, h
}

func TestClientRoundTrip(t *testing.T) {
	srv, _ := startServer(t, "tok")
	c := NewClient(srv.URL+"/", "tok")
	ctx := context.Background()

	assert.Equal(t, srv.URL, c.BaseURL())

	snap, err := c.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Records)

	rec, err := c.Create(ctx, "2024-01-08", "write report")
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)

	require.NoError(t, c.SetCompleted(ctx, rec.ID, true))

	snap, err = c.List(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	assert.True(t, snap.Records[0].Completed)
	assert.Equal(t, uint64(2), snap.Version)

	require.NoError(t, c.Delete(ctx, rec.ID))
	err = c.Delete(ctx, rec.ID)
	assert.True(t, IsNotFound(err))
	assert.False(t, IsRetryable(err))
}

func TestClientErrors(t *testing.T) {
	srv, _ := startServer(t, "tok")
	ctx := context.Background()

	_, err := NewClient(srv.URL, "").List(ctx)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "unauthorized", apiErr.Message)

	_, err = NewClient(srv.URL, "tok").Create(ctx, "not-a-date", "a")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Message, "invalid date")
}

func TestClientRetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	keys := make(chan string, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys <- r.Header.Get("Idempotency-Key")
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"error":"storage unavailable, retry later"}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"id":"r1","date":"2024-01-08","content":"a","completed":false}`)
	}))
	defer srv.Close()

	rec, err := NewClient(srv.URL, "").Create(context.Background(), "2024-01-08", "a")
	require.NoError(t, err)
	assert.Equal(t, "r1", rec.ID)
	assert.Equal(t, int32(3), calls.Load())

	// Every retry carries the same key.
	first := <-keys
	assert.NotEmpty(t, first)
	assert.Equal(t, first, <-keys)
	assert.Equal(t, first, <-keys)
}

func TestClientGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").Delete(context.Background(), "a")
	assert.True(t, IsRetryable(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(&TransportError{Method: "GET", Path: "/", Err: errors.New("connection refused")}))
	assert.False(t, IsRetryable(&TransportError{Method: "GET", Path: "/", Err: context.Canceled}))
	assert.True(t, IsRetryable(fmt.Errorf("listing: %w", &APIError{Status: http.StatusServiceUnavailable})))
	// do only retries 503, so nothing else may be reported as retryable.
	assert.False(t, IsRetryable(&APIError{Status: http.StatusTooManyRequests}))
	assert.False(t, IsRetryable(&APIError{Status: http.StatusBadRequest}))
	assert.False(t, IsRetryable(errors.New("unmarshaling response from GET /api/workItems: bad json")))
	assert.True(t, IsNotFound(fmt.Errorf("wrapped: %w", &APIError{Status: http.StatusNotFound})))
}

func TestUnreachableServerIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewClient(addr, "").List(context.Background())
	require.Error(t, err)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.MethodGet, transportErr.Method)
	assert.True(t, IsRetryable(err))
}

func TestUndecodableResponseIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").List(context.Background())
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestRetryAfterDuration(t *testing.T) {
	withHeader := &http.Response{Header: http.Header{"Retry-After": []string{"3"}}}
	assert.Equal(t, 3*time.Second, retryAfterDuration(withHeader, 0))

	none := &http.Response{Header: http.Header{}}
	assert.Equal(t, time.Second, retryAfterDuration(none, 0))
	assert.Equal(t, 4*time.Second, retryAfterDuration(none, 2))
	assert.Equal(t, 10*time.Second, retryAfterDuration(none, 6))
}

func TestBackoff(t *testing.T) {
	b := newBackoff(time.Second, 5*time.Second)
	b.jitter = func(d time.Duration) time.Duration { return d }

	var got []time.Duration
	for range 5 {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second,
	}, got)

	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}

func TestJitterBounds(t *testing.T) {
	for range 100 {
		d := jitter(time.Second)
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
	assert.Equal(t, time.Duration(0), jitter(0))
}

func TestPushURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://localhost:3000", "ws://localhost:3000/api/socketio"},
		{"https://cal.example.com/", "wss://cal.example.com/api/socketio"},
		{"http://example.com/workcal", "ws://example.com/workcal/api/socketio"},
	}
	for _, tt := range tests {
		got, err := PushURL(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := PushURL("ftp://example.com")
	assert.Error(t, err)
}

func TestWSDialer(t *testing.T) {
	srv, _ := startServer(t, "tok")
	c := NewClient(srv.URL, "tok")

	d, err := NewWSDialer(srv.URL, "tok", time.Second)
	require.NoError(t, err)

	ctx := context.Background()
	ch, err := d.Dial(ctx)
	require.NoError(t, err)
	defer ch.Close()

	snap, err := ch.Next()
	require.NoError(t, err)
	assert.Empty(t, snap.Records)

	_, err = c.Create(ctx, "2024-01-08", "pushed")
	require.NoError(t, err)

	snap, err = ch.Next()
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	assert.Equal(t, "pushed", snap.Records[0].Content)
	assert.Equal(t, uint64(1), snap.Version)

	bad, err := NewWSDialer(srv.URL, "wrong", time.Second)
	require.NoError(t, err)
	_, err = bad.Dial(ctx)
	assert.ErrorContains(t, err, "status 401")
}

package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nhle/workcal/internal/model"
)

// Channel is an open push channel delivering snapshots.
type Channel interface {
	// Next blocks until the server pushes the next snapshot or the channel
	// fails.
	Next() (model.Snapshot, error)
	Close() error
}

// Dialer opens push channels.
type Dialer interface {
	Dial(ctx context.Context) (Channel, error)
}

// WSDialer opens the websocket push channel at /api/socketio.
type WSDialer struct {
	URL   string
	Token string

	HandshakeTimeout time.Duration

	// ReadTimeout bounds the gap between two frames (pushes or pings). Zero
	// waits forever.
	ReadTimeout time.Duration
}

// NewWSDialer derives the websocket endpoint from an http(s) server URL.
func NewWSDialer(serverURL, token string, handshakeTimeout time.Duration) (*WSDialer, error) {
	u, err := PushURL(serverURL)
	if err != nil {
		return nil, err
	}
	return &WSDialer{
		URL:              u,
		Token:            token,
		HandshakeTimeout: handshakeTimeout,
		ReadTimeout:      time.Minute,
	}, nil
}

// PushURL maps http://host to ws://host/api/socketio and https to wss.
func PushURL(serverURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parsing server url %q: %w", serverURL, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path += "/api/socketio"
	return u.String(), nil
}

// Dial performs the websocket handshake.
func (d *WSDialer) Dial(ctx context.Context) (Channel, error) {
	dialer := *websocket.DefaultDialer
	if d.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = d.HandshakeTimeout
	}

	header := http.Header{}
	if d.Token != "" {
		header.Set("Authorization", "Bearer "+d.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %w (status %d)", d.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", d.URL, err)
	}

	ch := &wsChannel{conn: conn, readTimeout: d.ReadTimeout}
	if d.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(d.ReadTimeout))
		conn.SetPingHandler(func(data string) error {
			_ = conn.SetReadDeadline(time.Now().Add(d.ReadTimeout))
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		})
	}
	return ch, nil
}

type wsChannel struct {
	conn        *websocket.Conn
	readTimeout time.Duration
}

// Next reads frames until a workItemsUpdated message arrives.
func (c *wsChannel) Next() (model.Snapshot, error) {
	for {
		var msg model.PushMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return model.Snapshot{}, err
		}
		if c.readTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		if msg.Event != model.EventRecordsUpdated {
			continue
		}
		return msg.Snapshot(), nil
	}
}

func (c *wsChannel) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}

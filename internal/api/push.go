package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nhle/workcal/internal/model"
)

// maxClientMessage bounds inbound frames; clients only send control frames.
const maxClientMessage = 4096

// wsSink writes snapshots to one websocket connection.
type wsSink struct {
	conn *websocket.Conn
}

// Send writes snap as a workItemsUpdated message. The hub calls Send from a
// single goroutine per subscription, which is the only data writer.
func (s *wsSink) Send(ctx context.Context, snap model.Snapshot) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return s.conn.WriteJSON(model.NewPushMessage(snap))
}

// push upgrades the request to a websocket and subscribes it to the hub.
// The handler returns when the client goes away, the hub drops the
// subscription, or a keepalive ping fails.
func (s *Server) push(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()

	sub, err := s.hub.Subscribe(&wsSink{conn: conn})
	if err != nil {
		s.logger.Warn("push subscribe rejected", "err", err)
		closeWith(conn, websocket.CloseGoingAway, "server shutting down")
		return
	}
	defer s.hub.Unsubscribe(sub)

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		s.readPump(conn)
	}()

	ping := time.NewTicker(s.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-readDone:
			return
		case <-sub.Done():
			closeWith(conn, websocket.CloseGoingAway, "subscription ended")
			return
		case <-ping.C:
			deadline := time.Now().Add(s.cfg.PingInterval / 2)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug("ping failed", "subscriber", sub.ID, "err", err)
				return
			}
		}
	}
}

// readPump discards inbound messages and returns on the first read error,
// which is how a closed or dead connection is detected.
func (s *Server) readPump(conn *websocket.Conn) {
	pongWait := 2 * s.cfg.PingInterval
	conn.SetReadLimit(maxClientMessage)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("push channel read failed", "err", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nhle/workcal/internal/model"
)

// events streams the full snapshot as server-sent events: once immediately,
// then every FallbackInterval until the client disconnects. It is the
// fallback for clients that cannot hold a websocket open.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// The stream outlives server.write_timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	ctx := r.Context()
	send := func() error {
		snap, err := s.gateway.Snapshot(ctx, model.OrderOldestFirst)
		if err != nil {
			s.logger.Error("fallback snapshot failed", "err", err)
			_, werr := fmt.Fprintf(w, "event: error\ndata: %q\n\n", "unable to fetch records")
			flusher.Flush()
			return werr
		}
		if err := writeEvent(w, snap); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := send(); err != nil {
		return
	}

	ticker := time.NewTicker(s.cfg.FallbackInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := send(); err != nil {
				return
			}
		}
	}
}

// writeEvent writes one SSE frame whose data is the JSON record array and
// whose id is the snapshot version.
func writeEvent(w http.ResponseWriter, snap model.Snapshot) error {
	records := snap.Records
	if records == nil {
		records = []model.Record{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", snap.Version, model.EventRecordsUpdated, data)
	return err
}

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/nhle/workcal/internal/gateway"
	"github.com/nhle/workcal/internal/model"
)

// HeaderIdempotencyKey optionally deduplicates creates.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderSnapshotVersion carries the version of the list a response reflects.
const HeaderSnapshotVersion = "X-Snapshot-Version"

// listRecords returns the full current list.
func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	order, err := model.ParseSortOrder(r.URL.Query().Get("order"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.gateway.Snapshot(r.Context(), order)
	if err != nil {
		s.logger.Error("listing records", "err", err)
		writeError(w, err)
		return
	}

	records := snap.Records
	if records == nil {
		records = []model.Record{}
	}
	w.Header().Set(HeaderSnapshotVersion, strconv.FormatUint(snap.Version, 10))
	writeJSON(w, http.StatusOK, records)
}

// createRecord adds a record and answers with it.
func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := s.gateway.Create(r.Context(), req.Date, req.Content, r.Header.Get(HeaderIdempotencyKey))
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	if res.Snapshot.Version > 0 {
		w.Header().Set(HeaderSnapshotVersion, strconv.FormatUint(res.Snapshot.Version, 10))
	}
	writeJSON(w, status, res.Record)
}

// setCompleted sets a record's completion flag. The id comes from the path,
// the "id" query parameter or the body, in that order.
func (s *Server) setCompleted(w http.ResponseWriter, r *http.Request) {
	var req model.SetCompletedRequest
	if err := s.decode(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Completed == nil {
		writeError(w, gateway.Invalidf("completed is required"))
		return
	}

	id := recordID(r, req.ID)
	if _, err := s.gateway.SetCompleted(r.Context(), id, *req.Completed); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.Ack{Message: "Item updated successfully"})
}

// deleteRecord removes a record.
func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	id := recordID(r, "")
	if _, err := s.gateway.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.Ack{Message: "Item deleted successfully"})
}

func recordID(r *http.Request, fromBody string) string {
	if id := mux.Vars(r)["id"]; id != "" {
		return id
	}
	if id := r.URL.Query().Get("id"); id != "" {
		return id
	}
	return strings.TrimSpace(fromBody)
}

// decode reads a size-limited JSON body. Any failure is an invalid request.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return gateway.Invalidf("malformed JSON body: %v", err)
	}
	return nil
}

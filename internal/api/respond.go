package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nhle/workcal/internal/gateway"
	"github.com/nhle/workcal/internal/model"
)

// retryAfterSeconds is advertised with every storage failure.
const retryAfterSeconds = "2"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorBody{Error: msg})
}

// writeError maps the gateway error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var storageErr *gateway.StorageError
	switch {
	case errors.Is(err, gateway.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, gateway.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &storageErr):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeJSONError(w, http.StatusServiceUnavailable, "storage unavailable, retry later")
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	allow := []string{http.MethodGet}
	if strings.HasPrefix(r.URL.Path, PathRecords) {
		allow = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}
		if r.URL.Path != PathRecords {
			allow = []string{http.MethodPut, http.MethodDelete}
		}
	}
	w.Header().Set("Allow", strings.Join(allow, ", "))
	writeJSONError(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method %s Not Allowed", r.Method))
}

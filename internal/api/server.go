// Package api exposes the record list over HTTP: the one-shot mutation API,
// the websocket push channel and the server-sent fallback stream.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/nhle/workcal/internal/gateway"
	"github.com/nhle/workcal/internal/hub"
)

// Route paths. The record and push paths match the browser client.
const (
	PathRecords = "/api/workItems"
	PathPush    = "/api/socketio"
	PathEvents  = "/api/events"
	PathHealth  = "/healthz"
)

// Config holds the HTTP-layer settings.
type Config struct {
	MaxBodyBytes     int64
	FallbackInterval time.Duration
	PingInterval     time.Duration
	AuthToken        string
}

// Server wires HTTP handlers to the gateway and the hub.
type Server struct {
	gateway  *gateway.Gateway
	hub      *hub.Hub
	cfg      Config
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer creates the HTTP surface. Both gateway and hub are long-lived
// process singletons created during startup.
func NewServer(g *gateway.Gateway, h *hub.Hub, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 * 1024
	}
	if cfg.FallbackInterval <= 0 {
		cfg.FallbackInterval = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	return &Server{
		gateway: g,
		hub:     h,
		cfg:     cfg,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Same-origin is not required; the browser client may be served
			// from anywhere.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Router builds the mux router with logging and auth middleware.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(s.logger))

	r.Methods(http.MethodGet).Path(PathHealth).HandlerFunc(s.health)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(AuthMiddleware(s.cfg.AuthToken))

	api.Methods(http.MethodGet).Path("/workItems").HandlerFunc(s.listRecords)
	api.Methods(http.MethodPost).Path("/workItems").HandlerFunc(s.createRecord)
	api.Methods(http.MethodPut).Path("/workItems").HandlerFunc(s.setCompleted)
	api.Methods(http.MethodDelete).Path("/workItems").HandlerFunc(s.deleteRecord)
	api.Methods(http.MethodPut).Path("/workItems/{id}").HandlerFunc(s.setCompleted)
	api.Methods(http.MethodDelete).Path("/workItems/{id}").HandlerFunc(s.deleteRecord)

	api.Methods(http.MethodGet).Path("/socketio").HandlerFunc(s.push)
	api.Methods(http.MethodGet).Path("/events").HandlerFunc(s.events)

	r.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowed)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	body := map[string]any{
		"status":      "ok",
		"subscribers": s.hub.Count(),
		"version":     s.hub.Latest().Version,
	}
	status := http.StatusOK
	if err := s.gateway.Ping(ctx); err != nil {
		body["status"] = "degraded"
		body["error"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, body)
}

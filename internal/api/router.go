// Package api serves the object catalog, exports and one-shot telemetry
// over HTTP and mounts the websocket hub.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/dedurus/openmct/internal/domain"
	"github.com/dedurus/openmct/internal/history"
	"github.com/dedurus/openmct/internal/websocket"
)

const (
	defaultTelemetryTimeout = 15 * time.Second
	defaultLogLimit         = 100
	defaultHistorySpan      = time.Hour
)

// HistoryQuerier reads recorded samples. *history.Store satisfies it.
type HistoryQuerier interface {
	Query(ctx context.Context, objectID string, start, end int64) ([]history.Point, error)
}

// Options configures a Router.
type Options struct {
	Registry *domain.Registry
	// Hub serves /ws when set.
	Hub *websocket.Hub
	// History serves /api/objects/{id}/history when set.
	History HistoryQuerier
	// TelemetryTimeout bounds one-shot telemetry requests.
	TelemetryTimeout time.Duration
	Version          string
}

// Router handles HTTP routing
type Router struct {
	mux              *http.ServeMux
	handler          http.Handler
	registry         *domain.Registry
	hub              *websocket.Hub
	history          HistoryQuerier
	telemetryTimeout time.Duration
	version          string
	startTime        time.Time
}

// NewRouter creates a new router instance
func NewRouter(opts Options) *Router {
	timeout := opts.TelemetryTimeout
	if timeout <= 0 {
		timeout = defaultTelemetryTimeout
	}
	r := &Router{
		mux:              http.NewServeMux(),
		registry:         opts.Registry,
		hub:              opts.Hub,
		history:          opts.History,
		telemetryTimeout: timeout,
		version:          opts.Version,
		startTime:        time.Now(),
	}
	r.setupRoutes()
	r.handler = ErrorHandler(r.mux)
	return r
}

func (r *Router) setupRoutes() {
	r.mux.HandleFunc("GET /healthz", r.handleHealth)
	r.mux.HandleFunc("GET /api/objects", r.handleListObjects)
	r.mux.HandleFunc("GET /api/objects/{id}", r.handleGetObject)
	r.mux.HandleFunc("GET /api/objects/{id}/export", r.handleExport)
	r.mux.HandleFunc("GET /api/objects/{id}/telemetry", r.handleTelemetry)
	r.mux.HandleFunc("GET /api/logs", r.handleLogs)
	if r.history != nil {
		r.mux.HandleFunc("GET /api/objects/{id}/history", r.handleHistory)
	}
	if r.hub != nil {
		r.mux.HandleFunc("GET /ws", r.hub.HandleWebSocket)
	}
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

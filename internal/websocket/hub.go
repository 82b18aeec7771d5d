// Package websocket hosts telemetry views over WebSocket connections. Each
// connected client owns one telemetry controller; the client is the
// controller's scope, so every telemetryUpdate becomes a pushed message.
package websocket

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/dedurus/openmct/internal/domain"
	"github.com/dedurus/openmct/internal/metrics"
	"github.com/dedurus/openmct/internal/telemetry"
)

const (
	maxWebSocketInboundMessageSize = 64 * 1024
	writeWait                      = 10 * time.Second
	pongWait                       = 60 * time.Second
	pingPeriod                     = 54 * time.Second
	sendBufferSize                 = 256
)

// Message types.
const (
	TypeWelcome            = "welcome"
	TypeRepresent          = "represent"
	TypeRequestData        = "requestData"
	TypeSetRefreshInterval = "setRefreshInterval"
	TypePing               = "ping"
	TypePong               = "pong"
	TypeError              = "error"
)

// Message is the envelope for both directions.
type Message struct {
	Type      string      `json:"type"`
	ID        string      `json:"id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
}

type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ObjectLookup resolves identifiers to domain objects. *domain.Registry
// satisfies it.
type ObjectLookup interface {
	Lookup(id string) (*domain.Object, error)
}

// Options configures a Hub.
type Options struct {
	Objects        ObjectLookup
	PollInterval   time.Duration
	BroadcastDelay time.Duration
	AllowedOrigins []string
}

// Hub tracks connected clients.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	stopCh     chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex

	objects        ObjectLookup
	pollInterval   time.Duration
	broadcastDelay time.Duration
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub(opts Options) *Hub {
	h := &Hub{
		clients:        make(map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		stopCh:         make(chan struct{}),
		objects:        opts.Objects,
		pollInterval:   opts.PollInterval,
		broadcastDelay: opts.BroadcastDelay,
	}
	h.SetAllowedOrigins(opts.AllowedOrigins)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// SetAllowedOrigins replaces the origin allow-list. Entries may contain
// wildcards; "*" allows every origin.
func (h *Hub) SetAllowedOrigins(origins []string) {
	cleaned := make([]string, 0, len(origins))
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			cleaned = append(cleaned, o)
		}
	}
	h.mu.Lock()
	h.allowedOrigins = cleaned
	h.mu.Unlock()
}

// SetRefreshInterval changes the poll interval of every connected client and
// of clients that connect later.
func (h *Hub) SetRefreshInterval(d time.Duration) {
	h.mu.Lock()
	h.pollInterval = d
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.controller.SetRefreshInterval(d)
	}
	log.Info().Dur("interval", d).Int("clients", len(clients)).Msg("Telemetry poll interval updated")
}

// Run processes registrations until Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.WebsocketClientConnected()
			log.Info().Str("client", client.id).Msg("WebSocket client connected")
			client.enqueue(Message{
				Type: TypeWelcome,
				Data: map[string]string{"clientId": client.id},
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.mu.Unlock()
				client.shutdown()
				metrics.WebsocketClientDisconnected()
				log.Info().Str("client", client.id).Msg("WebSocket client disconnected")
			} else {
				h.mu.Unlock()
			}

		case <-h.stopCh:
			h.mu.Lock()
			clients := h.clients
			h.clients = make(map[*Client]bool)
			h.mu.Unlock()
			for client := range clients {
				client.shutdown()
				metrics.WebsocketClientDisconnected()
			}
			return
		}
	}
}

// Stop terminates Run and disconnects every client. It is idempotent.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
	})
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and starts the client pumps.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("origin", r.Header.Get("Origin")).Msg("Failed to upgrade WebSocket connection")
		return
	}
	conn.SetReadLimit(maxWebSocketInboundMessageSize)

	h.mu.RLock()
	interval := h.pollInterval
	h.mu.RUnlock()

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		id:     uuid.NewString(),
		ctx:    ctx,
		cancel: cancel,
	}
	client.controller = telemetry.New(telemetry.Options{
		Scope:          client,
		PollInterval:   interval,
		BroadcastDelay: h.broadcastDelay,
	})

	select {
	case h.register <- client:
	case <-h.stopCh:
		client.shutdown()
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	h.mu.RLock()
	allowed := h.allowedOrigins
	h.mu.RUnlock()

	for _, pattern := range allowed {
		if pattern == "*" || wildcard.Match(strings.ToLower(pattern), strings.ToLower(origin)) {
			return true
		}
	}

	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		log.Warn().Str("origin", origin).Msg("Rejected WebSocket origin")
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	if len(allowed) == 0 && isValidPrivateOrigin(u.Hostname()) {
		return true
	}

	log.Warn().Str("origin", origin).Str("host", r.Host).Msg("Rejected WebSocket origin")
	return false
}

// isValidPrivateOrigin accepts loopback, RFC 1918 addresses and short
// .local/.lan host names.
func isValidPrivateOrigin(host string) bool {
	if host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate()
	}
	for _, suffix := range []string{".local", ".lan"} {
		if strings.HasSuffix(host, suffix) {
			labels := strings.Split(host, ".")
			if len(labels) > 3 {
				return false
			}
			for _, label := range labels {
				if label == "" {
					return false
				}
			}
			return true
		}
	}
	return false
}

// sanitizeValue replaces NaN and Inf floats with nil so payloads always
// encode.
func sanitizeValue(data interface{}) interface{} {
	switch v := data.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return v
	case float32:
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil
		}
		return v
	case domain.Payload:
		return sanitizeMap(v)
	case domain.Metadata:
		return sanitizeMap(v)
	case map[string]interface{}:
		return sanitizeMap(v)
	case []interface{}:
		sanitized := make([]interface{}, len(v))
		for i, val := range v {
			sanitized[i] = sanitizeValue(val)
		}
		return sanitized
	default:
		return v
	}
}

func sanitizeMap(m map[string]interface{}) map[string]interface{} {
	sanitized := make(map[string]interface{}, len(m))
	for k, val := range m {
		sanitized[k] = sanitizeValue(val)
	}
	return sanitized
}

func newEventID() string {
	return ulid.Make().String()
}

package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dedurus/openmct/internal/domain"
	"github.com/dedurus/openmct/internal/errors"
	"github.com/dedurus/openmct/internal/telemetry"
)

// Client is one WebSocket connection and its telemetry controller.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	id         string
	controller *telemetry.Controller
	ctx        context.Context
	cancel     context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// TelemetryUpdate is the data of a pushed telemetryUpdate message.
type TelemetryUpdate struct {
	Objects []telemetry.Snapshot `json:"objects"`
	Pending bool                 `json:"pending"`
}

// Broadcast implements telemetry.Scope.
func (c *Client) Broadcast(event string) {
	if event != telemetry.EventTelemetryUpdate {
		return
	}
	snapshots := c.controller.Snapshots()
	for i := range snapshots {
		snapshots[i].Metadata = sanitizeMap(snapshots[i].Metadata)
		snapshots[i].Response = sanitizeMap(snapshots[i].Response)
	}
	c.enqueue(Message{
		Type: event,
		ID:   newEventID(),
		Data: TelemetryUpdate{
			Objects: snapshots,
			Pending: c.controller.IsRequestPending(),
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// enqueue queues msg for the write pump. Messages for a full or closed
// client are dropped.
func (c *Client) enqueue(msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("client", c.id).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		log.Warn().Str("client", c.id).Str("type", msg.Type).Msg("Client send buffer full, dropping message")
		return false
	}
}

func (c *Client) sendError(format string, args ...interface{}) {
	c.enqueue(Message{Type: TypeError, Data: map[string]string{"message": fmt.Sprintf(format, args...)}})
}

// shutdown stops the controller and closes the send channel once.
func (c *Client) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	c.cancel()
	c.controller.Close()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopCh:
		}
		c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("client", c.id).Msg("WebSocket read error")
			} else {
				log.Debug().Err(err).Str("client", c.id).Msg("WebSocket closed")
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.sendError("invalid message: %v", err)
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg inboundMessage) {
	switch msg.Type {
	case TypePing:
		c.enqueue(Message{Type: TypePong, Data: map[string]int64{"timestamp": time.Now().Unix()}})

	case TypeRepresent:
		var data struct {
			ID string `json:"id"`
		}
		if err := decodeData(msg.Data, &data); err != nil {
			c.sendError("invalid represent: %v", err)
			return
		}
		var obj *domain.Object
		if data.ID != "" {
			found, err := c.hub.objects.Lookup(data.ID)
			if err != nil {
				if errors.IsNotFound(err) {
					c.sendError("object %q not found", data.ID)
				} else {
					c.sendError("lookup %q: %v", data.ID, err)
				}
			}
			obj = found
		}
		c.controller.Represent(c.ctx, obj)

	case TypeRequestData:
		req := domain.Request{}
		if err := decodeData(msg.Data, &req); err != nil {
			c.sendError("invalid requestData: %v", err)
			return
		}
		c.controller.RequestData(c.ctx, req)

	case TypeSetRefreshInterval:
		var data struct {
			MS *int64 `json:"ms"`
		}
		if err := decodeData(msg.Data, &data); err != nil || data.MS == nil || *data.MS < 0 {
			c.sendError("setRefreshInterval needs a non-negative ms value")
			return
		}
		c.controller.SetRefreshInterval(time.Duration(*data.MS) * time.Millisecond)

	default:
		c.sendError("unknown message type %q", msg.Type)
	}
}

func decodeData(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("client", c.id).Msg("Failed to write message")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package websocket

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dedurus/openmct/internal/domain"
)

type constTelemetry struct{ value float64 }

func (c constTelemetry) RequestData(_ context.Context, req domain.Request) (domain.Payload, error) {
	return domain.Payload{"value": c.value, "mode": req.String("mode")}, nil
}

func (c constTelemetry) Metadata() domain.Metadata {
	return domain.Metadata{"units": "V"}
}

func newTestRegistry(t *testing.T) *domain.Registry {
	t.Helper()
	reg := domain.NewRegistry()
	reg.RegisterCapability(domain.CapabilityTelemetry, func(obj *domain.Object) (interface{}, bool) {
		section, ok := obj.Model().Section("telemetry")
		if !ok {
			return nil, false
		}
		v, _ := section["value"].(float64)
		return constTelemetry{value: v}, true
	})
	puts := map[string]domain.Model{
		"panel": {"name": "Panel", "type": "telemetry.panel", "composition": []string{"volts", "nan"}},
		"volts": {"name": "Volts", "type": "generator", "telemetry": map[string]interface{}{"value": 12.5}},
		"nan":   {"name": "NaN", "type": "generator", "telemetry": map[string]interface{}{"value": math.NaN()}},
	}
	for _, id := range []string{"volts", "nan", "panel"} {
		if err := reg.Put(id, puts[id]); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	return reg
}

func startHub(t *testing.T, opts Options) (*Hub, string) {
	t.Helper()
	hub := NewHub(opts)
	go hub.Run()
	t.Cleanup(hub.Stop)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(server.Close)
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type received struct {
	Type string          `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

func readUntil(t *testing.T, conn *websocket.Conn, msgType string) received {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if err := conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
			t.Fatalf("set read deadline: %v", err)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			continue
		}
		var msg received
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal message: %v", err)
		}
		if msg.Type == msgType {
			return msg
		}
	}
	t.Fatalf("expected %s message", msgType)
	return received{}
}

func send(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", msg.Type, err)
	}
}

func TestHandleWebSocketWelcomeAndPingPong(t *testing.T) {
	_, wsURL := startHub(t, Options{Objects: newTestRegistry(t)})
	conn := dial(t, wsURL)

	welcome := readUntil(t, conn, TypeWelcome)
	var data map[string]string
	if err := json.Unmarshal(welcome.Data, &data); err != nil || data["clientId"] == "" {
		t.Fatalf("welcome carries no client id: %s", welcome.Data)
	}

	send(t, conn, Message{Type: TypePing})
	readUntil(t, conn, TypePong)
}

func TestRepresentAndRequestDataPushesTelemetryUpdate(t *testing.T) {
	_, wsURL := startHub(t, Options{Objects: newTestRegistry(t)})
	conn := dial(t, wsURL)
	readUntil(t, conn, TypeWelcome)

	send(t, conn, Message{Type: TypeRepresent, Data: map[string]string{"id": "panel"}})
	send(t, conn, Message{Type: TypeRequestData, Data: map[string]string{"mode": "latest"}})

	msg := readUntil(t, conn, "telemetryUpdate")
	if len(msg.ID) != 26 {
		t.Fatalf("event id %q is not a ULID", msg.ID)
	}

	var update struct {
		Objects []struct {
			ID       string                 `json:"id"`
			Name     string                 `json:"name"`
			Metadata map[string]interface{} `json:"metadata"`
			Response map[string]interface{} `json:"response"`
		} `json:"objects"`
		Pending bool `json:"pending"`
	}
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatalf("unmarshal update: %v", err)
	}
	if len(update.Objects) != 2 {
		t.Fatalf("objects = %d, want 2", len(update.Objects))
	}
	if update.Objects[0].ID != "volts" || update.Objects[1].ID != "nan" {
		t.Fatalf("unexpected order: %+v", update.Objects)
	}
	if update.Objects[0].Metadata["units"] != "V" {
		t.Fatalf("metadata not forwarded: %+v", update.Objects[0].Metadata)
	}
}

func TestRepresentUnknownObjectReportsError(t *testing.T) {
	_, wsURL := startHub(t, Options{Objects: newTestRegistry(t)})
	conn := dial(t, wsURL)
	readUntil(t, conn, TypeWelcome)

	send(t, conn, Message{Type: TypeRepresent, Data: map[string]string{"id": "missing"}})
	msg := readUntil(t, conn, TypeError)
	if !strings.Contains(string(msg.Data), "missing") {
		t.Fatalf("error does not name the object: %s", msg.Data)
	}
}

func TestInvalidMessagesReportErrors(t *testing.T) {
	_, wsURL := startHub(t, Options{Objects: newTestRegistry(t)})
	conn := dial(t, wsURL)
	readUntil(t, conn, TypeWelcome)

	send(t, conn, Message{Type: "launch"})
	readUntil(t, conn, TypeError)

	send(t, conn, Message{Type: TypeSetRefreshInterval, Data: map[string]int{"ms": -5}})
	readUntil(t, conn, TypeError)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, conn, TypeError)
}

func TestSetRefreshIntervalPolls(t *testing.T) {
	_, wsURL := startHub(t, Options{Objects: newTestRegistry(t)})
	conn := dial(t, wsURL)
	readUntil(t, conn, TypeWelcome)

	send(t, conn, Message{Type: TypeRepresent, Data: map[string]string{"id": "volts"}})
	send(t, conn, Message{Type: TypeRequestData, Data: map[string]string{"mode": "latest"}})
	readUntil(t, conn, "telemetryUpdate")

	send(t, conn, Message{Type: TypeSetRefreshInterval, Data: map[string]int{"ms": 20}})
	readUntil(t, conn, "telemetryUpdate")
	readUntil(t, conn, "telemetryUpdate")
}

func TestHubClientCountAndStop(t *testing.T) {
	hub, wsURL := startHub(t, Options{Objects: newTestRegistry(t)})
	conn := dial(t, wsURL)
	readUntil(t, conn, TypeWelcome)

	if got := hub.GetClientCount(); got != 1 {
		t.Fatalf("client count = %d, want 1", got)
	}

	hub.Stop()
	hub.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for hub.GetClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("clients not released after stop")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandleWebSocketAfterStopClosesConnection(t *testing.T) {
	hub := NewHub(Options{Objects: newTestRegistry(t)})
	hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(server.Close)
	conn := dial(t, "ws"+strings.TrimPrefix(server.URL, "http"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected the connection to be closed by a stopped hub")
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		t.Fatalf("connection was left open: %v", err)
	}
	if hub.GetClientCount() != 0 {
		t.Fatalf("stopped hub registered a client")
	}
}

func TestHubSetRefreshIntervalUpdatesClients(t *testing.T) {
	hub, wsURL := startHub(t, Options{Objects: newTestRegistry(t)})
	conn := dial(t, wsURL)
	readUntil(t, conn, TypeWelcome)

	hub.SetRefreshInterval(3 * time.Second)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	for c := range hub.clients {
		if got := c.controller.RefreshInterval(); got != 3*time.Second {
			t.Fatalf("client interval = %v, want 3s", got)
		}
	}
	if hub.pollInterval != 3*time.Second {
		t.Fatalf("hub interval = %v, want 3s", hub.pollInterval)
	}
}

func TestHub_SetAllowedOrigins_CopiesInput(t *testing.T) {
	hub := NewHub(Options{})
	origins := []string{"http://localhost:3000", " ", "https://example.com"}

	hub.SetAllowedOrigins(origins)
	origins[0] = "https://mutated.example.com"

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if len(hub.allowedOrigins) != 2 {
		t.Fatalf("allowedOrigins length = %d, want 2", len(hub.allowedOrigins))
	}
	if hub.allowedOrigins[0] != "http://localhost:3000" {
		t.Fatalf("allowedOrigins leaked caller mutation, got %q", hub.allowedOrigins[0])
	}
}

func TestHub_CheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		host    string
		allowed []string
		want    bool
	}{
		{name: "no origin header", host: "localhost:8080", want: true},
		{name: "same origin", origin: "http://mct.example.com:8080", host: "mct.example.com:8080", want: true},
		{name: "private origin without allow-list", origin: "http://192.168.1.20:3000", host: "mct:8080", want: true},
		{name: "public origin without allow-list", origin: "https://evil.example.com", host: "mct:8080", want: false},
		{name: "explicit allow", origin: "https://ops.example.com", host: "mct:8080", allowed: []string{"https://ops.example.com"}, want: true},
		{name: "wildcard allow", origin: "https://a.ops.example.com", host: "mct:8080", allowed: []string{"https://*.ops.example.com"}, want: true},
		{name: "star allows all", origin: "https://anything.test", host: "mct:8080", allowed: []string{"*"}, want: true},
		{name: "allow-list disables private fallback", origin: "http://192.168.1.20:3000", host: "mct:8080", allowed: []string{"https://ops.example.com"}, want: false},
		{name: "unparseable origin", origin: "::::", host: "mct:8080", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hub := NewHub(Options{AllowedOrigins: tc.allowed})
			req := httptest.NewRequest(http.MethodGet, "http://"+tc.host+"/ws", nil)
			req.Host = tc.host
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if got := hub.checkOrigin(req); got != tc.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tc.origin, got, tc.want)
			}
		})
	}
}

func TestIsValidPrivateOrigin(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected bool
	}{
		{"localhost", "localhost", true},
		{"ipv4 loopback", "127.0.0.1", true},
		{"ipv6 loopback", "::1", true},
		{"10.x.x.x private", "10.0.0.1", true},
		{"172.16.x.x private", "172.16.0.1", true},
		{"192.168.x.x private", "192.168.1.1", true},
		{"hostname.local", "myhost.local", true},
		{"hostname.lan", "myhost.lan", true},
		{"subdomain.hostname.local", "sub.myhost.local", true},
		{"too many subdomains .local", "a.b.c.d.local", false},
		{"public IP", "8.8.8.8", false},
		{"public domain", "example.com", false},
		{"empty string", "", false},
		{"just dot", ".", false},
		{"numbers only", "12345", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isValidPrivateOrigin(tc.host); got != tc.expected {
				t.Errorf("isValidPrivateOrigin(%q) = %v, want %v", tc.host, got, tc.expected)
			}
		})
	}
}

func TestSanitizeValue(t *testing.T) {
	in := domain.Payload{
		"nan":    math.NaN(),
		"inf":    math.Inf(1),
		"ok":     1.5,
		"nested": map[string]interface{}{"bad": math.Inf(-1)},
		"list":   []interface{}{math.NaN(), "x"},
	}
	out := sanitizeValue(in).(map[string]interface{})

	if out["nan"] != nil || out["inf"] != nil {
		t.Fatalf("non-finite values survived: %v", out)
	}
	if out["ok"] != 1.5 {
		t.Fatalf("finite value changed: %v", out["ok"])
	}
	if out["nested"].(map[string]interface{})["bad"] != nil {
		t.Fatal("nested value not sanitized")
	}
	if list := out["list"].([]interface{}); list[0] != nil || list[1] != "x" {
		t.Fatalf("list not sanitized: %v", list)
	}
	if _, err := json.Marshal(out); err != nil {
		t.Fatalf("sanitized payload does not encode: %v", err)
	}
}

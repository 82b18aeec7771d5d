package api

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dedurus/openmct/internal/domain"
	"github.com/dedurus/openmct/internal/export"
	"github.com/dedurus/openmct/internal/websocket"
)

type echoTelemetry struct {
	id string
}

func (e echoTelemetry) RequestData(ctx context.Context, req domain.Request) (domain.Payload, error) {
	if e.id == "stuck" {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return domain.Payload{"source": e.id, "mode": req.String("mode"), "size": req["size"]}, nil
}

func (e echoTelemetry) Metadata() domain.Metadata {
	return domain.Metadata{"key": e.id}
}

func newTestRegistry(t *testing.T) *domain.Registry {
	t.Helper()
	reg := domain.NewRegistry()
	reg.RegisterCapability(domain.CapabilityTelemetry, func(obj *domain.Object) (interface{}, bool) {
		if _, ok := obj.Model().Section("telemetry"); !ok {
			return nil, false
		}
		return echoTelemetry{id: obj.ID()}, true
	})
	models := []struct {
		id    string
		model domain.Model
	}{
		{"root", domain.Model{"name": "My Items", "type": "folder", "composition": []interface{}{"panel"}}},
		{"panel", domain.Model{"name": "Panel", "type": "telemetry.panel", "composition": []interface{}{"gen-a", "gen-b"}}},
		{"gen-a", domain.Model{"name": "A", "type": "generator", "telemetry": map[string]interface{}{"source": "generator"}}},
		{"gen-b", domain.Model{"name": "B", "type": "generator", "telemetry": map[string]interface{}{"source": "generator"}}},
		{"cpu", domain.Model{"name": "CPU", "type": "host.metric", "telemetry": map[string]interface{}{"source": "host"}}},
		{"stuck", domain.Model{"name": "Stuck", "type": "generator", "telemetry": map[string]interface{}{"source": "generator"}}},
	}
	for _, m := range models {
		require.NoError(t, reg.Put(m.id, m.model))
	}
	return reg
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	return NewRouter(Options{Registry: newTestRegistry(t), Version: "test", TelemetryTimeout: 200 * time.Millisecond})
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestRouter(t), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, 6, resp.Objects)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestListObjects(t *testing.T) {
	router := newTestRouter(t)

	rec := get(t, router, "/api/objects")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []ObjectView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 6)
	assert.Equal(t, "root", all[0].ID)
	assert.ElementsMatch(t, []string{"composition", "creation"}, all[0].Capabilities)
	assert.Nil(t, all[0].Model)

	rec = get(t, router, "/api/objects?match=gen-*")
	var matched []ObjectView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &matched))
	require.Len(t, matched, 2)
	assert.Equal(t, "gen-a", matched[0].ID)
	assert.Equal(t, "gen-b", matched[1].ID)
}

func TestGetObject(t *testing.T) {
	router := newTestRouter(t)

	rec := get(t, router, "/api/objects/panel")
	require.Equal(t, http.StatusOK, rec.Code)
	var view ObjectView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "Panel", view.Name)
	assert.Equal(t, "telemetry.panel", view.Type)
	assert.Contains(t, view.Capabilities, domain.CapabilityDelegation)
	assert.Equal(t, []interface{}{"gen-a", "gen-b"}, view.Model["composition"])

	rec = get(t, router, "/api/objects/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Code)
}

func TestExportDownload(t *testing.T) {
	rec := get(t, newTestRouter(t), "/api/objects/root/export")
	require.Equal(t, http.StatusOK, rec.Code)

	_, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, "My Items.json", params["filename"])

	var doc export.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Len(t, doc.OpenMCT, 4)
	for _, id := range []string{"root", "panel", "gen-a", "gen-b"} {
		assert.Contains(t, doc.OpenMCT, id)
	}
}

func TestExportRequiresCreation(t *testing.T) {
	router := newTestRouter(t)

	rec := get(t, router, "/api/objects/cpu/export")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "capability_missing", decodeError(t, rec).Code)

	rec = get(t, router, "/api/objects/missing/export")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOneShotTelemetry(t *testing.T) {
	rec := get(t, newTestRouter(t), "/api/objects/panel/telemetry?mode=latest&size=3")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TelemetryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "panel", resp.ID)
	assert.Equal(t, domain.Request{"mode": "latest", "size": 3.0}, resp.Request)
	require.Len(t, resp.Objects, 2)
	assert.Equal(t, "gen-a", resp.Objects[0].ID)
	assert.Equal(t, "gen-b", resp.Objects[1].ID)
	assert.Equal(t, "gen-a", resp.Objects[0].Response["source"])
	assert.Equal(t, "latest", resp.Objects[1].Response["mode"])
	assert.Equal(t, 3.0, resp.Objects[1].Response["size"])
}

func TestOneShotTelemetryErrors(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name   string
		target string
		status int
		code   string
	}{
		{"unknown object", "/api/objects/missing/telemetry", http.StatusNotFound, "not_found"},
		{"no telemetry", "/api/objects/root/telemetry", http.StatusUnprocessableEntity, "capability_missing"},
		{"timeout", "/api/objects/stuck/telemetry", http.StatusGatewayTimeout, "timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, router, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestLogs(t *testing.T) {
	router := newTestRouter(t)
	log.Info().Msg("api log history probe")

	rec := get(t, router, "/api/logs?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Lines []string `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.LessOrEqual(t, len(resp.Lines), 5)

	rec = get(t, router, "/api/logs?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/objects", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	newTestRouter(t).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebsocketRouteMountedWithHub(t *testing.T) {
	reg := newTestRegistry(t)
	hub := websocket.NewHub(websocket.Options{Objects: reg})
	go hub.Run()
	defer hub.Stop()

	router := NewRouter(Options{Registry: reg, Hub: hub})
	rec := get(t, router, "/ws")
	// Plain GET without upgrade headers is rejected by the upgrader, not the mux.
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, newTestRouter(t), "/ws")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPanicRecovery(t *testing.T) {
	h := ErrorHandler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := get(t, h, "/anything")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decodeError(t, rec).Code)
}

package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dedurus/openmct/internal/domain"
	"github.com/dedurus/openmct/internal/errors"
	"github.com/dedurus/openmct/internal/export"
	"github.com/dedurus/openmct/internal/history"
	"github.com/dedurus/openmct/internal/logging"
	"github.com/dedurus/openmct/internal/telemetry"
)

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status           string  `json:"status"`
	Version          string  `json:"version,omitempty"`
	Uptime           float64 `json:"uptime"`
	Objects          int     `json:"objects"`
	WebsocketClients int     `json:"websocketClients"`
}

// ObjectView describes one catalog object.
type ObjectView struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Type         string       `json:"type,omitempty"`
	Capabilities []string     `json:"capabilities"`
	Model        domain.Model `json:"model,omitempty"`
}

// TelemetryResponse is the result of a one-shot telemetry request.
type TelemetryResponse struct {
	ID      string               `json:"id"`
	Request domain.Request       `json:"request"`
	Objects []telemetry.Snapshot `json:"objects"`
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: r.version,
		Uptime:  time.Since(r.startTime).Seconds(),
		Objects: r.registry.Len(),
	}
	if r.hub != nil {
		resp.WebsocketClients = r.hub.GetClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (r *Router) handleListObjects(w http.ResponseWriter, req *http.Request) {
	objects := r.registry.Match(req.URL.Query().Get("match"))
	views := make([]ObjectView, 0, len(objects))
	for _, obj := range objects {
		views = append(views, describe(obj, false))
	}
	writeJSON(w, http.StatusOK, views)
}

func (r *Router) handleGetObject(w http.ResponseWriter, req *http.Request) {
	obj, err := r.registry.Lookup(req.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(obj, true))
}

func (r *Router) handleExport(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	obj, err := r.registry.Lookup(id)
	if err != nil {
		writeError(w, err)
		return
	}
	actx := export.ActionContext{DomainObject: obj}
	if !export.AppliesTo(actx) {
		writeError(w, errors.CapabilityMissing("export", id, domain.CapabilityCreation))
		return
	}

	service := &attachmentService{w: w}
	if err := export.NewAction(actx, service).Run(req.Context()); err != nil {
		if service.wrote {
			logger := logging.FromContext(req.Context())
			logger.Error().Err(err).Str("object", id).Msg("Export download interrupted")
			return
		}
		writeError(w, err)
	}
}

func (r *Router) handleTelemetry(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	obj, err := r.registry.Lookup(id)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(req.Context(), r.telemetryTimeout)
	defer cancel()

	ctrl := telemetry.New(telemetry.Options{})
	defer ctrl.Close()

	ctrl.Represent(ctx, obj)
	if len(ctrl.TelemetryObjects()) == 0 {
		writeError(w, errors.CapabilityMissing("request_telemetry", id, domain.CapabilityTelemetry))
		return
	}

	request := requestFromQuery(req.URL.Query())
	select {
	case <-ctrl.RequestData(ctx, request):
	case <-ctx.Done():
	}
	if err := ctx.Err(); err != nil {
		writeError(w, errors.NewObjectError(errors.ErrorTypeTimeout, "request_telemetry", id, err))
		return
	}

	log.Debug().Str("object", id).Int("objects", len(ctrl.TelemetryObjects())).Msg("Served one-shot telemetry")
	writeJSON(w, http.StatusOK, TelemetryResponse{ID: id, Request: request, Objects: ctrl.Snapshots()})
}

// HistoryResponse lists recorded samples for one object.
type HistoryResponse struct {
	ID     string          `json:"id"`
	Start  int64           `json:"start"`
	End    int64           `json:"end"`
	Points []history.Point `json:"points"`
}

func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if _, err := r.registry.Lookup(id); err != nil {
		writeError(w, err)
		return
	}

	query := req.URL.Query()
	end := time.Now().UnixMilli()
	if raw := query.Get("end"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "invalid_input", "end must be UTC milliseconds", nil)
			return
		}
		end = v
	}
	start := end - defaultHistorySpan.Milliseconds()
	if raw := query.Get("start"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "invalid_input", "start must be UTC milliseconds", nil)
			return
		}
		start = v
	}
	if end < start {
		writeErrorResponse(w, http.StatusBadRequest, "invalid_input", "end must not precede start", nil)
		return
	}

	points, err := r.history.Query(req.Context(), id, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{ID: id, Start: start, End: end, Points: points})
}

func (r *Router) handleLogs(w http.ResponseWriter, req *http.Request) {
	limit := defaultLogLimit
	if raw := req.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeErrorResponse(w, http.StatusBadRequest, "invalid_input", "limit must be a positive integer", nil)
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"lines": logging.GetHistory().Recent(limit)})
}

func describe(obj *domain.Object, withModel bool) ObjectView {
	view := ObjectView{
		ID:           obj.ID(),
		Name:         obj.Name(),
		Type:         obj.Type(),
		Capabilities: obj.Capabilities(),
	}
	if withModel {
		view.Model = obj.Model()
	}
	return view
}

func requestFromQuery(values url.Values) domain.Request {
	req := make(domain.Request, len(values))
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		req[key] = domain.ParseRequestValue(vals[0])
	}
	return req
}

package history

import (
	"context"
	"math"
	"time"

	"github.com/dedurus/openmct/internal/domain"
	"github.com/dedurus/openmct/internal/sources"
)

// Recorder receives the samples of successful telemetry responses.
type Recorder interface {
	Write(objectID string, timestamp int64, value float64)
}

var _ Recorder = (*Store)(nil)

// Wrap decorates a telemetry capability factory so every successful response
// is recorded before it is returned.
func Wrap(rec Recorder, factory domain.CapabilityFactory) domain.CapabilityFactory {
	return func(obj *domain.Object) (interface{}, bool) {
		c, ok := factory(obj)
		if !ok {
			return nil, false
		}
		tc, ok := c.(domain.TelemetryCapability)
		if !ok {
			return c, true
		}
		return &recordingTelemetry{TelemetryCapability: tc, id: obj.ID(), rec: rec, nowFn: time.Now}, true
	}
}

type recordingTelemetry struct {
	domain.TelemetryCapability
	id    string
	rec   Recorder
	nowFn func() time.Time
}

func (r *recordingTelemetry) RequestData(ctx context.Context, req domain.Request) (domain.Payload, error) {
	payload, err := r.TelemetryCapability.RequestData(ctx, req)
	if err == nil {
		for _, p := range Samples(payload, r.nowFn) {
			r.rec.Write(r.id, p.Timestamp, p.Value)
		}
	}
	return payload, err
}

// Samples extracts numeric samples from a telemetry payload. It understands
// a "points" list (typed or decoded JSON with "utc"/"value" keys) and a bare
// top-level "value", which is stamped with "utc" or the current time.
func Samples(payload domain.Payload, nowFn func() time.Time) []sources.Point {
	switch points := payload["points"].(type) {
	case []sources.Point:
		out := make([]sources.Point, 0, len(points))
		for _, p := range points {
			if finite(p.Value) {
				out = append(out, p)
			}
		}
		return out
	case []interface{}:
		out := make([]sources.Point, 0, len(points))
		for _, raw := range points {
			m, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			ts, okTS := number(m["utc"])
			v, okV := number(m["value"])
			if okTS && okV {
				out = append(out, sources.Point{Timestamp: int64(ts), Value: v})
			}
		}
		return out
	}

	v, ok := number(payload["value"])
	if !ok {
		return nil
	}
	ts := nowFn().UnixMilli()
	if t, ok := number(payload["utc"]); ok {
		ts = int64(t)
	}
	return []sources.Point{{Timestamp: ts, Value: v}}
}

func number(v interface{}) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, false
	}
	return f, finite(f)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

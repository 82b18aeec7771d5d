package domain

import (
	"context"
	"math"
	"strconv"
)

// Capability names understood by the registry.
const (
	CapabilityTelemetry   = "telemetry"
	CapabilityComposition = "composition"
	CapabilityDelegation  = "delegation"
	CapabilityCreation    = "creation"
)

// CapabilityNames lists the capabilities in the order they are reported.
var CapabilityNames = []string{
	CapabilityTelemetry,
	CapabilityComposition,
	CapabilityDelegation,
	CapabilityCreation,
}

// Request carries opaque telemetry request parameters, e.g. {"mode": "latest"}.
type Request map[string]interface{}

// Payload is the opaque result of a telemetry fetch. Callers must treat
// payloads handed out by the controller as read-only.
type Payload map[string]interface{}

// Metadata describes a telemetry point (keys, units, ranges). Opaque here.
type Metadata map[string]interface{}

// TelemetryCapability fetches telemetry for one object.
type TelemetryCapability interface {
	RequestData(ctx context.Context, req Request) (Payload, error)
	Metadata() Metadata
}

// CompositionCapability lists the children of an object.
type CompositionCapability interface {
	Children(ctx context.Context) ([]*Object, error)
}

// DelegationCapability forwards a capability request to related objects.
type DelegationCapability interface {
	Delegate(ctx context.Context, capability string) ([]*Object, error)
}

// CreationCapability marks objects that users may create and export.
type CreationCapability interface {
	Creatable() bool
}

// CapabilityFactory produces the named capability for an object, or
// reports false when the object does not support it.
type CapabilityFactory func(obj *Object) (interface{}, bool)

// String returns a string request parameter.
func (r Request) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Int64 returns a numeric request parameter. JSON numbers decode as float64,
// so both representations are accepted.
func (r Request) Int64(key string) (int64, bool) {
	switch v := r[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// Clone copies the top-level parameters.
func (r Request) Clone() Request {
	if r == nil {
		return nil
	}
	out := make(Request, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// ParseRequestValue converts a textual parameter (query string, CLI flag)
// into the value a JSON request would carry: numbers become float64 and
// everything else stays a string.
func ParseRequestValue(raw string) interface{} {
	if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return raw
}

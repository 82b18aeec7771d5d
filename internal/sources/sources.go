// Package sources provides the telemetry capability for domain objects whose
// model carries a "telemetry" section. The section's "source" key selects the
// provider:
//
//	{"source": "generator", "period": 10, "amplitude": 1, "offset": 0}
//	{"source": "host", "metric": "cpu" | "memory" | "load"}
//	{"source": "http", "url": "https://example/telemetry"}
package sources

import (
	"net/http"
	"time"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog/log"

	"github.com/dedurus/openmct/internal/domain"
)

const defaultHTTPTimeout = 10 * time.Second

// Point is a single telemetry sample. Timestamps are UTC milliseconds.
type Point struct {
	Timestamp int64   `json:"utc"`
	Value     float64 `json:"value"`
}

// Options configures the provider factory.
type Options struct {
	// HTTPTimeout bounds a single remote fetch.
	HTTPTimeout time.Duration
	// Resolver caches DNS lookups for remote sources. Nil uses the shared resolver.
	Resolver *dnscache.Resolver
	// Host samples local host metrics. Nil uses gopsutil.
	Host HostSampler
}

// Factory builds telemetry capabilities from object models.
type Factory struct {
	nowFn  func() time.Time
	client *http.Client
	host   HostSampler
}

// NewFactory constructs a factory with real clocks, samplers and HTTP client.
func NewFactory(opts Options) *Factory {
	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = SharedResolver()
	}
	host := opts.Host
	if host == nil {
		host = gopsutilSampler{}
	}
	return &Factory{
		nowFn:  time.Now,
		client: newHTTPClient(resolver, timeout),
		host:   host,
	}
}

// Register installs the factory as the registry's telemetry capability.
func (f *Factory) Register(reg *domain.Registry) {
	reg.RegisterCapability(domain.CapabilityTelemetry, f.Capability)
}

// Capability implements domain.CapabilityFactory.
func (f *Factory) Capability(obj *domain.Object) (interface{}, bool) {
	section, ok := obj.Model().Section("telemetry")
	if !ok {
		return nil, false
	}
	source, _ := section["source"].(string)
	switch source {
	case "generator":
		return newGenerator(obj, section, f.nowFn), true
	case "host":
		return newHostMetric(obj, section, f.host, f.nowFn), true
	case "http":
		remote, err := newRemote(obj, section, f.client)
		if err != nil {
			log.Warn().Err(err).Str("object", obj.ID()).Msg("Invalid remote telemetry configuration")
			return nil, false
		}
		return remote, true
	default:
		log.Debug().Str("object", obj.ID()).Str("source", source).Msg("Unknown telemetry source")
		return nil, false
	}
}

func floatSetting(section map[string]interface{}, key string, fallback float64) float64 {
	switch v := section[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}

func stringSetting(section map[string]interface{}, key, fallback string) string {
	if s, ok := section[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

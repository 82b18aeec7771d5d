package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/dedurus/openmct/internal/domain"
	"github.com/dedurus/openmct/internal/errors"
)

// HostSampler reads one local host metric.
type HostSampler interface {
	Sample(ctx context.Context, metric string) (float64, error)
}

type gopsutilSampler struct{}

func (gopsutilSampler) Sample(ctx context.Context, metric string) (float64, error) {
	switch metric {
	case "cpu":
		percents, err := cpu.PercentWithContext(ctx, 0, false)
		if err != nil {
			return 0, err
		}
		if len(percents) == 0 {
			return 0, fmt.Errorf("no cpu samples")
		}
		return percents[0], nil
	case "memory":
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return 0, err
		}
		return vm.UsedPercent, nil
	case "load":
		avg, err := load.AvgWithContext(ctx)
		if err != nil {
			return 0, err
		}
		return avg.Load1, nil
	default:
		return 0, fmt.Errorf("%w: unknown host metric %q", errors.ErrInvalidInput, metric)
	}
}

// HostMetric reports the current value of a host metric. It has no history,
// so every request mode returns a single latest sample.
type HostMetric struct {
	id      string
	name    string
	metric  string
	sampler HostSampler
	nowFn   func() time.Time
}

func newHostMetric(obj *domain.Object, section map[string]interface{}, sampler HostSampler, nowFn func() time.Time) *HostMetric {
	return &HostMetric{
		id:      obj.ID(),
		name:    obj.Name(),
		metric:  stringSetting(section, "metric", "cpu"),
		sampler: sampler,
		nowFn:   nowFn,
	}
}

// Metadata describes the metric.
func (h *HostMetric) Metadata() domain.Metadata {
	units := "%"
	if h.metric == "load" {
		units = ""
	}
	return domain.Metadata{
		"key":    h.id,
		"name":   h.name,
		"source": "host",
		"metric": h.metric,
		"units":  units,
	}
}

// RequestData samples the metric once.
func (h *HostMetric) RequestData(ctx context.Context, _ domain.Request) (domain.Payload, error) {
	value, err := h.sampler.Sample(ctx, h.metric)
	if err != nil {
		return nil, errors.NewObjectError(errors.ErrorTypeSource, "request_data", h.id, err)
	}
	return domain.Payload{
		"key":    h.id,
		"mode":   "latest",
		"points": []Point{{Timestamp: h.nowFn().UnixMilli(), Value: value}},
	}, nil
}

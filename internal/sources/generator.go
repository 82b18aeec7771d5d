package sources

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/dedurus/openmct/internal/domain"
	"github.com/dedurus/openmct/internal/errors"
)

const (
	defaultGeneratorPeriod = 10 * time.Second
	defaultRangeSize       = 100
	maxRangeSize           = 10000
)

// Generator produces a sine wave: offset + amplitude*sin(2πt/period).
type Generator struct {
	id        string
	name      string
	period    time.Duration
	amplitude float64
	offset    float64
	nowFn     func() time.Time
}

func newGenerator(obj *domain.Object, section map[string]interface{}, nowFn func() time.Time) *Generator {
	period := time.Duration(floatSetting(section, "period", 0) * float64(time.Second))
	if period <= 0 {
		period = defaultGeneratorPeriod
	}
	return &Generator{
		id:        obj.ID(),
		name:      obj.Name(),
		period:    period,
		amplitude: floatSetting(section, "amplitude", 1),
		offset:    floatSetting(section, "offset", 0),
		nowFn:     nowFn,
	}
}

// Metadata describes the generated series.
func (g *Generator) Metadata() domain.Metadata {
	return domain.Metadata{
		"key":       g.id,
		"name":      g.name,
		"source":    "generator",
		"period":    g.period.Seconds(),
		"amplitude": g.amplitude,
		"offset":    g.offset,
		"values": []interface{}{
			map[string]interface{}{"key": "utc", "name": "Time", "format": "utc"},
			map[string]interface{}{"key": "value", "name": "Sine"},
		},
	}
}

// RequestData returns the latest sample for mode "latest" (the default), or
// "size" evenly spaced samples between "start" and "end" (UTC ms).
func (g *Generator) RequestData(ctx context.Context, req domain.Request) (domain.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := req.String("mode")
	if mode == "" || mode == "latest" {
		now := g.nowFn().UnixMilli()
		return g.payload("latest", []Point{g.sample(now)}), nil
	}

	start, okStart := req.Int64("start")
	end, okEnd := req.Int64("end")
	if !okStart || !okEnd || end < start {
		return nil, errors.NewObjectError(errors.ErrorTypeValidation, "request_data", g.id,
			fmt.Errorf("%w: range request needs start <= end", errors.ErrInvalidInput))
	}
	size := int64(defaultRangeSize)
	if s, ok := req.Int64("size"); ok && s > 0 {
		size = s
	}
	if size > maxRangeSize {
		size = maxRangeSize
	}
	if end == start {
		size = 1
	}

	points := make([]Point, 0, size)
	for i := int64(0); i < size; i++ {
		ts := start
		if size > 1 {
			ts = start + (end-start)*i/(size-1)
		}
		points = append(points, g.sample(ts))
	}
	return g.payload(mode, points), nil
}

func (g *Generator) sample(tsMillis int64) Point {
	phase := 2 * math.Pi * float64(tsMillis) / float64(g.period.Milliseconds())
	return Point{Timestamp: tsMillis, Value: g.offset + g.amplitude*math.Sin(phase)}
}

func (g *Generator) payload(mode string, points []Point) domain.Payload {
	return domain.Payload{
		"key":    g.id,
		"mode":   mode,
		"points": points,
	}
}

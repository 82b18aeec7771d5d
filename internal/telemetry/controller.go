// Package telemetry implements the polling controller behind telemetry views.
//
// A Controller tracks the telemetry-providing objects of one represented
// object: the object itself when it has the telemetry capability, followed by
// whatever it delegates telemetry to. It issues on-demand requests (counted
// as pending) and periodic polls (not counted), keeps the latest payload per
// object and coalesces settlements into a single deferred telemetryUpdate
// broadcast on its Scope.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dedurus/openmct/internal/domain"
	"github.com/dedurus/openmct/internal/metrics"
)

// EventTelemetryUpdate is broadcast after fetch results have been applied.
const EventTelemetryUpdate = "telemetryUpdate"

// Scope receives controller notifications.
type Scope interface {
	Broadcast(event string)
}

// ScopeFunc adapts a function to Scope.
type ScopeFunc func(event string)

// Broadcast calls f(event).
func (f ScopeFunc) Broadcast(event string) { f(event) }

// Options configures a Controller.
type Options struct {
	Scope Scope
	// PollInterval between untracked refreshes. Zero disables polling.
	PollInterval time.Duration
	// BroadcastDelay defers telemetryUpdate. Zero still defers to a later turn.
	BroadcastDelay time.Duration
}

type entry struct {
	id       string
	name     string
	object   *domain.Object
	metadata domain.Metadata
	response domain.Payload
	pending  int
	issued   uint64
	applied  uint64
}

// Controller is safe for concurrent use.
type Controller struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	after  scheduler
	scope  Scope

	ids     []string
	entries map[string]*entry

	request        domain.Request
	pending        int
	interval       time.Duration
	broadcastDelay time.Duration

	broadcast      broadcastState
	broadcastTimer timer
	poll           pollState
	pollTimer      timer

	generation uint64
	closed     bool
}

// New creates a controller and starts its poll loop when an interval is set.
func New(opts Options) *Controller {
	return newController(opts, afterFunc)
}

func newController(opts Options, after scheduler) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		ctx:            ctx,
		cancel:         cancel,
		after:          after,
		scope:          opts.Scope,
		entries:        make(map[string]*entry),
		interval:       opts.PollInterval,
		broadcastDelay: opts.BroadcastDelay,
	}
	c.mu.Lock()
	c.schedulePollLocked()
	c.mu.Unlock()
	return c
}

// Represent switches the controller to a new represented object. A nil
// object clears the tracked set. When request parameters were set earlier, a
// tracked fetch is issued against the new set.
func (c *Controller) Represent(ctx context.Context, obj *domain.Object) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	objects := resolveObjects(ctx, obj)
	ids := make([]string, 0, len(objects))
	entries := make(map[string]*entry, len(objects))
	for _, o := range objects {
		if _, dup := entries[o.ID()]; dup {
			continue
		}
		ids = append(ids, o.ID())
		entries[o.ID()] = newEntry(o)
	}

	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.ids = ids
	c.entries = entries
	hasRequest := c.request != nil
	c.mu.Unlock()

	log.Debug().
		Str("represented", objectID(obj)).
		Int("tracked", len(ids)).
		Msg("Telemetry objects resolved")

	if hasRequest {
		c.issue(c.ctx, true)
	}
}

func resolveObjects(ctx context.Context, obj *domain.Object) []*domain.Object {
	if obj == nil {
		return nil
	}
	var objects []*domain.Object
	if obj.HasCapability(domain.CapabilityTelemetry) {
		objects = append(objects, obj)
	}
	if delegation, ok := obj.Delegation(); ok {
		delegates, err := delegation.Delegate(ctx, domain.CapabilityTelemetry)
		if err != nil {
			log.Warn().Err(err).Str("object", obj.ID()).Msg("Telemetry delegation failed")
		} else {
			objects = append(objects, delegates...)
		}
	}
	return objects
}

func newEntry(obj *domain.Object) *entry {
	e := &entry{
		id:       obj.ID(),
		name:     obj.Name(),
		object:   obj,
		metadata: domain.Metadata{},
		response: domain.Payload{},
	}
	if tc, ok := obj.Telemetry(); ok {
		if md := tc.Metadata(); md != nil {
			e.metadata = md
		}
	} else {
		log.Warn().Str("object", obj.ID()).Msg("Expected telemetry capability on tracked object")
	}
	return e
}

// Metadata returns metadata snapshots in tracking order.
func (c *Controller) Metadata() []domain.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Metadata, len(c.ids))
	for i, id := range c.ids {
		out[i] = c.entries[id].metadata
	}
	return out
}

// TelemetryObjects returns the tracked objects in tracking order.
func (c *Controller) TelemetryObjects() []*domain.Object {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*domain.Object, len(c.ids))
	for i, id := range c.ids {
		out[i] = c.entries[id].object
	}
	return out
}

// Response returns the latest payload for id, or an empty payload.
func (c *Controller) Response(id string) domain.Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		return e.response
	}
	return domain.Payload{}
}

// ResponseFor is Response keyed by object.
func (c *Controller) ResponseFor(obj *domain.Object) domain.Payload {
	if obj == nil {
		return domain.Payload{}
	}
	return c.Response(obj.ID())
}

// Responses returns all latest payloads in tracking order.
func (c *Controller) Responses() []domain.Payload {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Payload, len(c.ids))
	for i, id := range c.ids {
		out[i] = c.entries[id].response
	}
	return out
}

// Snapshot is one tracked object as seen at a single instant.
type Snapshot struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Metadata domain.Metadata `json:"metadata"`
	Response domain.Payload  `json:"response"`
}

// Snapshots returns every tracked entry read under one lock.
func (c *Controller) Snapshots() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Snapshot, len(c.ids))
	for i, id := range c.ids {
		e := c.entries[id]
		out[i] = Snapshot{ID: e.id, Name: e.name, Metadata: e.metadata, Response: e.response}
	}
	return out
}

// IsRequestPending reports whether any tracked request is outstanding.
func (c *Controller) IsRequestPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending > 0
}

// RequestData replaces the request parameters and fetches every tracked
// object. The returned channel is closed once all of those fetches settled,
// whether they succeeded or not. Cancelling ctx cancels these fetches only.
func (c *Controller) RequestData(ctx context.Context, req domain.Request) <-chan struct{} {
	c.mu.Lock()
	if req == nil {
		req = domain.Request{}
	}
	c.request = req.Clone()
	c.mu.Unlock()
	return c.issue(ctx, true)
}

// SetRefreshInterval changes the poll interval. A wait already in progress
// keeps its original duration; zero stops polling after that wait.
func (c *Controller) SetRefreshInterval(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	c.interval = d
	c.schedulePollLocked()
}

// RefreshInterval returns the configured poll interval.
func (c *Controller) RefreshInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Close stops timers and cancels in-flight fetches. Pending counters still
// settle as the cancelled fetches return.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.pollTimer != nil {
		c.pollTimer.Stop()
		c.pollTimer = nil
	}
	if c.broadcastTimer != nil {
		c.broadcastTimer.Stop()
		c.broadcastTimer = nil
	}
	c.poll = pollIdle
	c.broadcast = broadcastIdle
	c.mu.Unlock()
	c.cancel()
}

type job struct {
	entry *entry
	seq   uint64
}

// issue fetches every tracked object. Fetch contexts end with parent or
// with Close, whichever comes first.
func (c *Controller) issue(parent context.Context, tracked bool) <-chan struct{} {
	c.mu.Lock()
	req := c.request.Clone()
	jobs := make([]job, 0, len(c.ids))
	for _, id := range c.ids {
		e := c.entries[id]
		e.issued++
		if tracked {
			e.pending++
			c.pending++
		}
		jobs = append(jobs, job{entry: e, seq: e.issued})
	}
	c.mu.Unlock()

	if tracked {
		metrics.AddPending(len(jobs))
	}

	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(c.ctx, cancel)

	var g errgroup.Group
	for _, j := range jobs {
		g.Go(func() error {
			c.fetch(ctx, j, req, tracked)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		stop()
		cancel()
		close(done)
	}()
	return done
}

func (c *Controller) fetch(ctx context.Context, j job, req domain.Request, tracked bool) {
	origin := metrics.OriginPoll
	if tracked {
		origin = metrics.OriginRequest
	}

	var (
		payload domain.Payload
		err     error
		outcome = metrics.OutcomeSuccess
		start   = time.Now()
	)
	tc, ok := j.entry.object.Telemetry()
	if !ok {
		log.Warn().Str("object", j.entry.id).Msg("Expected telemetry capability on tracked object")
		outcome = metrics.OutcomeMissingCapability
	} else {
		payload, err = tc.RequestData(ctx, req)
		if err != nil {
			outcome = metrics.OutcomeError
			log.Debug().Err(err).Str("object", j.entry.id).Str("origin", origin).Msg("Telemetry fetch failed")
		}
	}

	c.mu.Lock()
	// Failures leave applied alone so an older success still lands.
	if outcome == metrics.OutcomeSuccess {
		if j.seq > j.entry.applied {
			if payload == nil {
				payload = domain.Payload{}
			}
			j.entry.applied = j.seq
			j.entry.response = payload
		} else {
			outcome = metrics.OutcomeStale
		}
	}
	c.scheduleBroadcastLocked()
	if tracked {
		j.entry.pending--
		c.pending--
	}
	c.mu.Unlock()

	if tracked {
		metrics.AddPending(-1)
	}
	metrics.RecordFetch(origin, outcome, time.Since(start))
}

func (c *Controller) scheduleBroadcastLocked() {
	if c.closed || c.broadcast == broadcastScheduled {
		return
	}
	c.broadcast = broadcastScheduled
	c.broadcastTimer = c.after(c.broadcastDelay, c.emitBroadcast)
}

func (c *Controller) emitBroadcast() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.broadcast = broadcastIdle
	c.broadcastTimer = nil
	scope := c.scope
	c.mu.Unlock()

	if scope != nil {
		scope.Broadcast(EventTelemetryUpdate)
	}
	metrics.RecordBroadcast()
}

func (c *Controller) schedulePollLocked() {
	if c.closed || c.poll == pollWaiting || c.interval <= 0 {
		return
	}
	c.poll = pollWaiting
	c.pollTimer = c.after(c.interval, c.pollTick)
}

func (c *Controller) pollTick() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	hasRequest := c.request != nil
	c.mu.Unlock()

	if hasRequest {
		c.issue(c.ctx, false)
	}

	c.mu.Lock()
	c.poll = pollIdle
	c.pollTimer = nil
	c.schedulePollLocked()
	c.mu.Unlock()
}

func objectID(obj *domain.Object) string {
	if obj == nil {
		return ""
	}
	return obj.ID()
}

package telemetry

import "time"

// timer is a handle to a deferred callback.
type timer interface {
	Stop() bool
}

// scheduler runs f once after d. The default wraps time.AfterFunc; tests
// substitute a manual scheduler so turns can be stepped deterministically.
type scheduler func(d time.Duration, f func()) timer

func afterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

type broadcastState int

const (
	broadcastIdle broadcastState = iota
	broadcastScheduled
)

type pollState int

const (
	pollIdle pollState = iota
	pollWaiting
)

package logging

import (
	"container/ring"
	"strings"
	"sync"
)

// DefaultHistorySize is the number of log lines kept in memory.
const DefaultHistorySize = 500

var (
	history     *History
	historyOnce sync.Once
)

// History keeps the most recent log lines for the diagnostics endpoint.
type History struct {
	mu     sync.RWMutex
	buffer *ring.Ring
}

// NewHistory returns a buffer holding up to size lines.
func NewHistory(size int) *History {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &History{buffer: ring.New(size)}
}

// GetHistory returns the process-wide history that Init writes into.
func GetHistory() *History {
	historyOnce.Do(func() {
		history = NewHistory(DefaultHistorySize)
	})
	return history
}

// Write implements io.Writer.
func (h *History) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")

	h.mu.Lock()
	h.buffer.Value = line
	h.buffer = h.buffer.Next()
	h.mu.Unlock()

	return len(p), nil
}

// Recent returns up to limit lines, oldest first. A limit <= 0 returns all.
func (h *History) Recent(limit int) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	lines := make([]string, 0, h.buffer.Len())
	h.buffer.Do(func(v interface{}) {
		if v != nil {
			lines = append(lines, v.(string))
		}
	})
	if limit > 0 && len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines
}

package tui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jamesainslie/tinysweep/pkg/tinysweep/logging"
)

// logRingBuffer keeps the most recent log entries, oldest first.
type logRingBuffer struct {
	mu         sync.RWMutex
	entries    []logging.Entry
	maxEntries int
}

func newLogRingBuffer(maxEntries int) *logRingBuffer {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &logRingBuffer{
		entries:    make([]logging.Entry, 0, maxEntries),
		maxEntries: maxEntries,
	}
}

// Add appends entry, evicting the oldest at capacity.
func (rb *logRingBuffer) Add(entry logging.Entry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.entries) >= rb.maxEntries {
		rb.entries = rb.entries[1:]
	}
	rb.entries = append(rb.entries, entry)
}

// Entries returns a copy of the buffer.
func (rb *logRingBuffer) Entries() []logging.Entry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := make([]logging.Entry, len(rb.entries))
	copy(out, rb.entries)
	return out
}

// Len returns the number of buffered entries.
func (rb *logRingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}

// render formats the last n entries at or above minLevel.
func (rb *logRingBuffer) render(n int, minLevel logging.Level, width int) string {
	var lines []string
	for _, e := range rb.Entries() {
		if e.Level < minLevel {
			continue
		}
		line := fmt.Sprintf("%s %-5s %s: %s",
			e.Time.Format("15:04:05"),
			strings.ToUpper(e.Level.String()),
			e.Component,
			e.Message)
		if width > 0 && len(line) > width {
			line = line[:width]
		}
		lines = append(lines, levelStyle(e.Level).Render(line))
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

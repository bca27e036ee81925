package gateway

import (
	"sync"
	"time"
)

// defaultEventLogCap bounds the status-page history.
const defaultEventLogCap = 100

// EventLog is a bounded ring of recent connection events for the status
// page. Oldest entries are evicted first. Safe for concurrent use.
type EventLog struct {
	mu     sync.Mutex
	max    int
	events []ConnectionEvent
}

// NewEventLog returns an EventLog keeping at most max entries. max <= 0
// takes the default of 100.
func NewEventLog(max int) *EventLog {
	if max <= 0 {
		max = defaultEventLogCap
	}
	return &EventLog{max: max}
}

// Add appends an event, evicting the oldest entry when full. A zero
// timestamp is filled with the current time.
func (l *EventLog) Add(ev ConnectionEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) >= l.max {
		// Shift into a fresh slice so the backing array does not pin
		// evicted entries.
		next := make([]ConnectionEvent, len(l.events)-1, l.max)
		copy(next, l.events[1:])
		l.events = next
	}
	l.events = append(l.events, ev)
}

// All returns a copy of the history, oldest first.
func (l *EventLog) All() []ConnectionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ConnectionEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of stored events.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

package web

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// Event types pushed to websocket clients and kept in the event log.
const (
	EventReplay   = "replay"
	EventFailure  = "failure"
	EventNavigate = "navigate"
	EventUpdate   = "update"
)

// Event is one session activity notification.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Timestamp  time.Time   `json:"timestamp"`
	SessionID  string      `json:"session_id"`
	Index      int         `json:"index"`
	Method     string      `json:"method,omitempty"`
	URL        string      `json:"url,omitempty"`
	StatusCode int         `json:"status_code,omitempty"`
	Error      string      `json:"error,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// EventListOptions describes filters for querying logged events.
type EventListOptions struct {
	Type   string
	Search string
	Limit  int
	Offset int
}

// EventLog keeps recent events in memory using a ring buffer.
type EventLog struct {
	mu      sync.RWMutex
	max     int
	counter uint64
	items   []*Event
}

// NewEventLog creates an EventLog with the provided capacity.
func NewEventLog(max int) *EventLog {
	if max < 1 {
		max = 1
	}
	return &EventLog{
		max:   max,
		items: make([]*Event, 0, max),
	}
}

// Add assigns an ID and timestamp to ev and stores it, evicting the oldest
// event when full.
func (l *EventLog) Add(ev Event) *Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counter++
	ev.ID = strings.ToUpper(strconv.FormatUint(l.counter, 36))
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	stored := &ev

	if len(l.items) >= l.max {
		l.items = append(l.items[1:], stored)
	} else {
		l.items = append(l.items, stored)
	}
	return stored
}

// List returns filtered events (newest first) along with the total count.
func (l *EventLog) List(opts EventListOptions) ([]*Event, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(opts.Search))
	kind := strings.ToLower(strings.TrimSpace(opts.Type))

	filtered := make([]*Event, 0, len(l.items))
	for i := len(l.items) - 1; i >= 0; i-- {
		item := l.items[i]
		if kind != "" && item.Type != kind {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(item.URL+" "+item.Error), search) {
			continue
		}
		filtered = append(filtered, item)
	}

	total := len(filtered)
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if opts.Limit > 0 && offset+opts.Limit < total {
		end = offset + opts.Limit
	}
	return filtered[offset:end], total
}

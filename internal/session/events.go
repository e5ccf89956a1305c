package session

import (
	"sync"
	"time"
)

type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventCaptured     EventType = "captured"
	EventCornerAdded  EventType = "corner_added"
	EventPageReady    EventType = "page_ready"
	EventPageAdded    EventType = "page_added"
	EventFailed       EventType = "failed"
	EventDegraded     EventType = "degraded"
	EventFinalizing   EventType = "finalizing"
	EventAborted      EventType = "aborted"
)

// Event is the transient status pushed to the operator's screen.
type Event struct {
	SessionID string    `json:"session_id"`
	Type      EventType `json:"type"`
	State     State     `json:"state"`
	Pages     int       `json:"pages"`
	Message   string    `json:"message,omitempty"`
	Code      string    `json:"code,omitempty"`
	At        time.Time `json:"at"`
}

// broadcaster fans events out to subscribers without ever blocking the
// session; slow subscribers miss events.
type broadcaster struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Event
	closed bool
}

func (b *broadcaster) subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	if b.subs == nil {
		b.subs = make(map[int]chan Event)
	}
	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

package engine

import (
	"fmt"
	"sync"
	"time"
)

// EventType is the kind of change an Event reports.
type EventType string

const (
	EventLoaded    EventType = "LOADED"
	EventCreate    EventType = "CREATE"
	EventModify    EventType = "MODIFY"
	EventDelete    EventType = "DELETE"
	EventRollback  EventType = "ROLLBACK"
	EventReconcile EventType = "RECONCILE"
	EventSyncStart EventType = "SYNC_START"
	EventSyncEnd   EventType = "SYNC_END"
	EventCleared   EventType = "CLEARED"
)

// Event is a change of the record set or of the engine's activity.
// ID is the affected note; for RECONCILE, PrevID is the identifier it replaced.
type Event struct {
	Type      EventType
	ID        string
	PrevID    string
	Timestamp int64
}

// String implements lifecycle.Event.
func (e Event) String() string {
	switch {
	case e.PrevID != "":
		return fmt.Sprintf("%s %s -> %s", e.Type, e.PrevID, e.ID)
	case e.ID != "":
		return fmt.Sprintf("%s %s", e.Type, e.ID)
	default:
		return string(e.Type)
	}
}

// broker fans events out to subscribers. A slow subscriber loses events
// instead of stalling a mutation.
type broker struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	buffer  int
	dropped int
	closed  bool
}

func newBroker(buffer int) *broker {
	return &broker{subs: make(map[int]chan Event), buffer: buffer}
}

func (b *broker) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

func (b *broker) publish(e Event) {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixNano()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped++
		}
	}
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

func (b *broker) stats() (subscribers, dropped int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs), b.dropped
}

// Package events carries trace lifecycle notifications to subscribers.
// Publishing never blocks: a subscriber whose buffer is full misses the event.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type identifies the kind of event.
type Type string

const (
	TraceStored       Type = "trace.stored"
	TracePromoted     Type = "trace.promoted"
	TraceDemoted      Type = "trace.demoted"
	TraceEvicted      Type = "trace.evicted"
	TraceStrengthened Type = "trace.strengthened"
)

// Event is one lifecycle notification.
type Event struct {
	Type     Type      `json:"type"`
	TraceID  string    `json:"trace_id"`
	At       time.Time `json:"at"`
	From     string    `json:"from,omitempty"`
	To       string    `json:"to,omitempty"`
	Reason   string    `json:"reason,omitempty"`
	Strength float64   `json:"strength"`
}

// Publisher is what the engine needs from a bus.
type Publisher interface {
	Publish(Event)
}

// Bus fans events out to subscribers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	nextID  int
	dropped atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel func unregisters it and closes the channel; it is safe to call twice.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every subscriber with room for it.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(Event) {}

// Recorder is a Publisher that keeps every event, for tests and tooling.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many recorded events have type t.
func (r *Recorder) Count(t Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

// Reset forgets recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

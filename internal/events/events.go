// Package events is the one-way notification channel between the update
// core and whatever front end is listening.
//
// Delivery is best-effort: there is no acknowledgement, no retry and no
// backpressure. A subscriber that falls behind loses events. Consumers that
// need certainty must re-query state (for example by calling
// check-for-updates) instead of relying on having seen every event.
// Events that are delivered arrive in the order they were emitted.
package events

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Name identifies an event kind.
type Name string

const (
	// UpdateAvailable carries an update.VersionInfo payload.
	UpdateAvailable Name = "update-available"
	// UpdateProgress carries an update.Progress payload.
	UpdateProgress Name = "update-progress"
)

// Event is a single notification.
type Event struct {
	ID      string    `json:"id"`
	Name    Name      `json:"event"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// Emitter is the sink the update core pushes notifications into.
type Emitter interface {
	Emit(name Name, payload any)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(name Name, payload any)

// Emit calls f(name, payload).
func (f EmitterFunc) Emit(name Name, payload any) { f(name, payload) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(Name, any) {})

const defaultBuffer = 64

// Bus fans events out to any number of subscribers. Emit never blocks.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	buffer int
	now    func() time.Time
}

// NewBus creates a bus whose subscriber channels hold buffer events.
// A non-positive buffer uses the default.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{
		subs:   make(map[uint64]chan Event),
		buffer: buffer,
		now:    time.Now,
	}
}

// Emit delivers the event to every subscriber that has room for it.
func (b *Bus) Emit(name Name, payload any) {
	ev := Event{
		ID:      uuid.NewString(),
		Name:    name,
		Time:    b.now(),
		Payload: payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Drop if subscriber is full
		}
	}
}

// Subscribe registers a new subscriber. The cancel function unregisters it
// and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

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

// Subscribers reports the current subscriber count.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// JSONWriter writes each event as a single JSON line.
type JSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONWriter returns an Emitter writing JSON lines to w.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{enc: json.NewEncoder(w)}
}

// Emit writes the event. Encoding errors are ignored.
func (j *JSONWriter) Emit(name Name, payload any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	_ = j.enc.Encode(Event{
		ID:      uuid.NewString(),
		Name:    name,
		Time:    time.Now().UTC(),
		Payload: payload,
	})
}

// Multi fans a single Emit out to several emitters in order.
type Multi []Emitter

// Emit forwards to each emitter.
func (m Multi) Emit(name Name, payload any) {
	for _, e := range m {
		if e != nil {
			e.Emit(name, payload)
		}
	}
}

package events

import (
	"sort"
	"sync"
)

// Event represents a structured state change emitted by a protocol component.
type Event struct {
	Type       string
	Attributes map[string]string
}

// New starts an event of the given type with no attributes.
func New(eventType string) *Event {
	return &Event{Type: eventType, Attributes: make(map[string]string)}
}

// With records an attribute and returns the event for chaining.
func (e *Event) With(key, value string) *Event {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// Attr returns the attribute value or the empty string.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}

// Keys lists attribute names in sorted order.
func (e *Event) Keys() []string {
	keys := make([]string, 0, len(e.Attributes))
	for k := range e.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Emitter broadcasts events to downstream subscribers (e.g. indexers, logs).
type Emitter interface {
	Emit(*Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(*Event) {}

// Buffer holds events until the operation that produced them is committed.
type Buffer struct {
	mu     sync.Mutex
	events []*Event
}

func (b *Buffer) Emit(evt *Event) {
	if evt == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Mark returns the current buffer length, usable with Truncate.
func (b *Buffer) Mark() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Truncate drops events buffered after mark.
func (b *Buffer) Truncate(mark int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if mark >= 0 && mark < len(b.events) {
		b.events = b.events[:mark]
	}
}

// Drain returns the buffered events and empties the buffer.
func (b *Buffer) Drain() []*Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// Reset discards buffered events.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Recorder keeps every emitted event.
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

func (r *Recorder) Emit(evt *Event) {
	if evt == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Event(nil), r.events...)
}

// OfType filters recorded events by type.
func (r *Recorder) OfType(eventType string) []*Event {
	var out []*Event
	for _, evt := range r.Events() {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

// Fanout delivers each event to every subscriber in order.
type Fanout []Emitter

func (f Fanout) Emit(evt *Event) {
	for _, sub := range f {
		if sub != nil {
			sub.Emit(evt)
		}
	}
}

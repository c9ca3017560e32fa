// Package mock provides a recording [events.Sink] for tests.
package mock

import (
	"sync"

	"github.com/nanobot-edge/nanobot/internal/events"
)

// Sink records every published event.
type Sink struct {
	mu sync.Mutex

	// --- Call records ---

	// Published holds every event in publish order.
	Published []events.Event
}

// Publish records e.
func (s *Sink) Publish(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Published = append(s.Published, e)
}

// Kinds returns the kinds of all recorded events, in order. Thread-safe.
func (s *Sink) Kinds() []events.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Kind, len(s.Published))
	for i, e := range s.Published {
		out[i] = e.Kind
	}
	return out
}

// Events returns a copy of the recorded events. Thread-safe.
func (s *Sink) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.Published...)
}

// Count returns how many events of kind k were recorded. Thread-safe.
func (s *Sink) Count(k events.Kind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.Published {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// Reset clears the records.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Published = nil
}

var _ events.Sink = (*Sink)(nil)

package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// InMemory is a Store that lives for the lifetime of the process.
type InMemory struct {
	mu     sync.Mutex
	agents map[string]map[string]*Entry
	now    func() time.Time
}

// NewInMemory returns an empty InMemory store.
func NewInMemory() *InMemory {
	return &InMemory{agents: make(map[string]map[string]*Entry), now: time.Now}
}

// SetClock replaces the time source. Intended for tests.
func (s *InMemory) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Put implements Store.
func (s *InMemory) Put(_ context.Context, agent, name, content string) error {
	key := Key(name)
	if key == "" {
		return fmt.Errorf("memory: name must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.agents[agent]
	if m == nil {
		m = make(map[string]*Entry)
		s.agents[agent] = m
	}
	now := s.now()
	if e, ok := m[key]; ok {
		e.Content = strings.TrimSpace(content)
		e.LastUsedAt = now
		return nil
	}
	m[key] = &Entry{Name: key, Content: strings.TrimSpace(content), CreatedAt: now, LastUsedAt: now}
	return nil
}

// Get implements Store.
func (s *InMemory) Get(_ context.Context, agent, name string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.agents[agent][Key(name)]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	e.Uses++
	e.LastUsedAt = s.now()
	return *e, nil
}

// Delete implements Store.
func (s *InMemory) Delete(_ context.Context, agent, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := Key(name)
	if _, ok := s.agents[agent][key]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(s.agents[agent], key)
	return nil
}

// List implements Store.
func (s *InMemory) List(_ context.Context, agent string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.agents[agent]
	out := make([]Entry, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out = append(out, *m[k])
	}
	return out, nil
}

// Clear implements Store.
func (s *InMemory) Clear(_ context.Context, agent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.agents, agent)
	return nil
}

var _ Store = (*InMemory)(nil)

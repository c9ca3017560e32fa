// Package mock provides a configurable test double for [memory.Store].
//
// The mock wraps a real [memory.InMemory] so reads see earlier writes, and
// lets tests inject an error per method.
package mock

import (
	"context"
	"sync"

	"github.com/nanobot-edge/nanobot/pkg/memory"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	Method string
	Args   []any
}

// Store is a mock implementation of memory.Store.
type Store struct {
	mu    sync.Mutex
	inner *memory.InMemory

	PutErr    error
	GetErr    error
	DeleteErr error
	ListErr   error
	ClearErr  error

	// --- Call records ---

	calls []Call
}

func (s *Store) record(method string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inner == nil {
		s.inner = memory.NewInMemory()
	}
	s.calls = append(s.calls, Call{Method: method, Args: args})
}

// Put implements memory.Store.
func (s *Store) Put(ctx context.Context, agent, name, content string) error {
	s.record("Put", agent, name, content)
	if s.PutErr != nil {
		return s.PutErr
	}
	return s.inner.Put(ctx, agent, name, content)
}

// Get implements memory.Store.
func (s *Store) Get(ctx context.Context, agent, name string) (memory.Entry, error) {
	s.record("Get", agent, name)
	if s.GetErr != nil {
		return memory.Entry{}, s.GetErr
	}
	return s.inner.Get(ctx, agent, name)
}

// Delete implements memory.Store.
func (s *Store) Delete(ctx context.Context, agent, name string) error {
	s.record("Delete", agent, name)
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	return s.inner.Delete(ctx, agent, name)
}

// List implements memory.Store.
func (s *Store) List(ctx context.Context, agent string) ([]memory.Entry, error) {
	s.record("List", agent)
	if s.ListErr != nil {
		return nil, s.ListErr
	}
	return s.inner.List(ctx, agent)
}

// Clear implements memory.Store.
func (s *Store) Clear(ctx context.Context, agent string) error {
	s.record("Clear", agent)
	if s.ClearErr != nil {
		return s.ClearErr
	}
	return s.inner.Clear(ctx, agent)
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns how often method was called. Thread-safe.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

var _ memory.Store = (*Store)(nil)

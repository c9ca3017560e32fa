// Package memory stores short named facts an agent was asked to remember.
//
// Memories are scoped per agent and keyed by a normalised name. Every read
// through [Store.Get] counts as a use; [Evict] removes the least frequently
// used memories once an agent holds more than its limit.
//
// Every implementation must be safe for concurrent use.
package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// ErrNotFound is returned when a memory does not exist.
var ErrNotFound = errors.New("memory: not found")

// Entry is one remembered fact.
type Entry struct {
	Name       string    `json:"name"`
	Content    string    `json:"content"`
	Uses       int       `json:"uses"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// Store persists memories.
type Store interface {
	// Put creates or replaces the content of a memory. Replacing keeps the
	// use count.
	Put(ctx context.Context, agent, name, content string) error

	// Get returns a memory and records a use.
	Get(ctx context.Context, agent, name string) (Entry, error)

	// Delete removes a memory.
	Delete(ctx context.Context, agent, name string) error

	// List returns every memory of agent ordered by name, without recording
	// uses.
	List(ctx context.Context, agent string) ([]Entry, error)

	// Clear removes every memory of agent.
	Clear(ctx context.Context, agent string) error
}

// Key normalises a memory name.
func Key(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Evict deletes the least frequently used memories of agent until at most
// limit remain. keep is never evicted. Ties go to the memory unused for
// longest. It returns the evicted names.
func Evict(ctx context.Context, s Store, agent string, limit int, keep string) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	all, err := s.List(ctx, agent)
	if err != nil {
		return nil, err
	}
	excess := len(all) - limit
	if excess <= 0 {
		return nil, nil
	}
	keep = Key(keep)
	all = slices.DeleteFunc(all, func(e Entry) bool { return e.Name == keep })
	slices.SortFunc(all, func(a, b Entry) int {
		return cmp.Or(
			cmp.Compare(a.Uses, b.Uses),
			a.LastUsedAt.Compare(b.LastUsedAt),
			cmp.Compare(a.Name, b.Name),
		)
	})

	var evicted []string
	for _, e := range all[:min(excess, len(all))] {
		if err := s.Delete(ctx, agent, e.Name); err != nil && !errors.Is(err, ErrNotFound) {
			return evicted, fmt.Errorf("memory: evict %q: %w", e.Name, err)
		}
		evicted = append(evicted, e.Name)
	}
	return evicted, nil
}

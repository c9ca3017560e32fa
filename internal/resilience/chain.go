package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every backend in a [Chain] failed or was
// skipped by an open breaker.
var ErrAllFailed = errors.New("resilience: all backends failed")

type link[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain holds backends of one kind in preference order, each with its own
// [Breaker].
type Chain[T any] struct {
	links []link[T]
	cfg   BreakerConfig
}

// NewChain creates an empty chain. cfg is the template for every link's
// breaker; its Name is replaced with the link name.
func NewChain[T any](cfg BreakerConfig) *Chain[T] {
	return &Chain[T]{cfg: cfg}
}

// Add appends a backend. Backends are tried in the order they are added.
func (c *Chain[T]) Add(name string, value T) {
	cfg := c.cfg
	cfg.Name = name
	c.links = append(c.links, link[T]{name: name, value: value, breaker: NewBreaker(cfg)})
}

// Len returns the number of backends.
func (c *Chain[T]) Len() int { return len(c.links) }

// Primary returns the first backend. It panics on an empty chain.
func (c *Chain[T]) Primary() T { return c.links[0].value }

// Breakers returns every link's breaker in order.
func (c *Chain[T]) Breakers() []*Breaker {
	out := make([]*Breaker, len(c.links))
	for i := range c.links {
		out[i] = c.links[i].breaker
	}
	return out
}

// Call tries fn against each backend in order until one succeeds. It stops
// at the first error that coincides with ctx ending and returns that error
// unwrapped. Otherwise, when nothing succeeds, the result wraps
// [ErrAllFailed] and every backend's error.
func Call[T, R any](ctx context.Context, c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for i := range c.links {
		l := &c.links[i]
		var out R
		err := l.breaker.Do(ctx, func() error {
			var err error
			out, err = fn(l.value)
			return err
		})
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping backend, circuit open", "backend", l.name)
		} else {
			slog.Warn("backend failed, trying next", "backend", l.name, "err", err)
		}
		errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
	}
	if len(errs) == 0 {
		return zero, fmt.Errorf("%w: no backends configured", ErrAllFailed)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}

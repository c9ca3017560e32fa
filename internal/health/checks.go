package health

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/nanobot-edge/nanobot/internal/resilience"
)

// Pinger is implemented by stores that can report connectivity, such as the
// postgres memory store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping returns a checker that pings p.
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// Breakers returns a checker that fails when every breaker of a provider
// chain is open, which means no backend would be tried.
func Breakers(name string, breakers []*resilience.Breaker) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if len(breakers) == 0 {
			return errors.New("no backends configured")
		}
		var open []string
		for _, b := range breakers {
			if b.State() != resilience.StateOpen {
				return nil
			}
			open = append(open, b.Name())
		}
		return fmt.Errorf("all circuits open: %s", strings.Join(open, ", "))
	}}
}

// Flag is a readiness switch set by the component it describes. The zero
// value is not ready.
type Flag struct {
	ready atomic.Bool
}

// Set marks the component ready or not.
func (f *Flag) Set(ready bool) { f.ready.Store(ready) }

// Ready reports the current value.
func (f *Flag) Ready() bool { return f.ready.Load() }

// Checker returns a checker that passes while f is set.
func (f *Flag) Checker(name string) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if !f.Ready() {
			return errors.New("not running")
		}
		return nil
	}}
}

// Package indicator turns the event stream into a status colour for the
// device's eyes.
//
// [Reduce] folds events into a [State] of flags and [ColourOf] picks the
// colour by fixed priority. An [Indicator] owns the state in one goroutine
// and pushes every change to a [Driver].
package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/nanobot-edge/nanobot/internal/events"
)

// Colour is one of the eight colours an RGB indicator can show.
type Colour int

const (
	Off Colour = iota
	Red
	Green
	Blue
	Yellow
	Cyan
	Magenta
	White
)

var colourNames = [...]string{"off", "red", "green", "blue", "yellow", "cyan", "magenta", "white"}

// String returns the lower-case colour name.
func (c Colour) String() string {
	if c >= 0 && int(c) < len(colourNames) {
		return colourNames[c]
	}
	return fmt.Sprintf("Colour(%d)", int(c))
}

// ParseColour accepts a colour name in any case.
func ParseColour(s string) (Colour, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range colourNames {
		if n == s {
			return Colour(i), nil
		}
	}
	return Off, fmt.Errorf("indicator: unknown colour %q", s)
}

// Colours returns every colour name in declaration order.
func Colours() []string {
	return append([]string(nil), colourNames[:]...)
}

// State is the set of flags that decide the colour.
type State struct {
	Shutdown  bool
	Error     bool
	Listening bool
	Talking   bool
	Function  bool
	Thinking  bool
	Wake      bool
	Noise     bool
}

// Reduce applies e to s. Wake is transient: any later event clears it.
func Reduce(s State, e events.Event) State {
	s.Wake = false
	switch e.Kind {
	case events.KindShutdown:
		s.Shutdown = true
	case events.KindError:
		s.Error = true
	case events.KindOk:
		s.Error = false
	case events.KindStartListening:
		s.Listening = true
	case events.KindStopListening:
		s.Listening = false
	case events.KindStartTalking:
		s.Talking = true
	case events.KindStopTalking:
		s.Talking = false
	case events.KindStartThinking:
		s.Thinking = true
	case events.KindStopThinking:
		s.Thinking = false
	case events.KindFunctionInvoking:
		s.Function = true
	case events.KindFunctionInvoked:
		s.Function = false
	case events.KindWakeDetected:
		s.Wake = true
	case events.KindNoiseDetected:
		s.Noise = true
	case events.KindSilenceDetected:
		s.Noise = false
	case events.KindHangup:
		s.Listening, s.Talking, s.Thinking, s.Function = false, false, false, false
	}
	return s
}

// ColourOf returns the colour for s, falling back to def when no flag that
// carries a colour is set.
func ColourOf(s State, def Colour) Colour {
	switch {
	case s.Shutdown:
		return Off
	case s.Error:
		return Red
	case s.Listening:
		return Green
	case s.Talking:
		return Magenta
	case s.Function:
		return Blue
	case s.Thinking:
		return Cyan
	case s.Wake:
		return Yellow
	default:
		return def
	}
}

// Indicator applies events to a Driver from a single goroutine. Publish and
// SetDefault may be called from anywhere.
type Indicator struct {
	driver Driver
	def    atomic.Int32

	events  chan events.Event
	refresh chan struct{}
}

// New returns an Indicator showing def when idle.
func New(driver Driver, def Colour) *Indicator {
	in := &Indicator{
		driver:  driver,
		events:  make(chan events.Event, 32),
		refresh: make(chan struct{}, 1),
	}
	in.def.Store(int32(def))
	return in
}

// Publish implements [events.Sink]. Events are dropped when the queue is
// full.
func (in *Indicator) Publish(e events.Event) {
	select {
	case in.events <- e:
	default:
		slog.Debug("indicator: event dropped", "kind", e.Kind)
	}
}

// DefaultColour returns the idle colour.
func (in *Indicator) DefaultColour() Colour { return Colour(in.def.Load()) }

// SetDefaultColour changes the idle colour and refreshes the driver.
func (in *Indicator) SetDefaultColour(c Colour) {
	in.def.Store(int32(c))
	select {
	case in.refresh <- struct{}{}:
	default:
	}
}

// Run owns the state until ctx ends, then switches the driver off.
func (in *Indicator) Run(ctx context.Context) error {
	var (
		state State
		shown = Colour(-1)
	)
	show := func() {
		c := ColourOf(state, in.DefaultColour())
		if c == shown {
			return
		}
		if err := in.driver.Set(c); err != nil {
			slog.Warn("indicator: set colour", "colour", c, "err", err)
			return
		}
		shown = c
	}
	show()

	for {
		select {
		case <-ctx.Done():
			if err := in.driver.Set(Off); err != nil {
				slog.Warn("indicator: switch off", "err", err)
			}
			return nil
		case e := <-in.events:
			state = Reduce(state, e)
			show()
		case <-in.refresh:
			show()
		}
	}
}

var _ events.Sink = (*Indicator)(nil)

package indicator

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Driver displays a colour.
type Driver interface {
	Set(c Colour) error
}

// LogDriver logs every colour change at debug level.
type LogDriver struct{}

// Set implements Driver.
func (LogDriver) Set(c Colour) error {
	slog.Debug("indicator colour", "colour", c)
	return nil
}

var ansi = map[Colour]string{
	Off:     "\x1b[90m",
	Red:     "\x1b[31m",
	Green:   "\x1b[32m",
	Blue:    "\x1b[34m",
	Yellow:  "\x1b[33m",
	Cyan:    "\x1b[36m",
	Magenta: "\x1b[35m",
	White:   "\x1b[37m",
}

// ConsoleDriver prints a coloured marker line per change, for console
// debug mode.
type ConsoleDriver struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleDriver writes to w.
func NewConsoleDriver(w io.Writer) *ConsoleDriver { return &ConsoleDriver{w: w} }

// Set implements Driver.
func (d *ConsoleDriver) Set(c Colour) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := fmt.Fprintf(d.w, "%s● %s\x1b[0m\n", ansi[c], c)
	return err
}

// Recorder keeps every colour it is set to. Used in tests and by the
// status endpoint.
type Recorder struct {
	mu   sync.Mutex
	seen []Colour
}

// Set implements Driver.
func (r *Recorder) Set(c Colour) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, c)
	return nil
}

// Seen returns a copy of the recorded colours.
func (r *Recorder) Seen() []Colour {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Colour(nil), r.seen...)
}

// Current returns the last colour set, or Off.
func (r *Recorder) Current() Colour {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.seen) == 0 {
		return Off
	}
	return r.seen[len(r.seen)-1]
}

// Multi fans Set out to several drivers and returns the first error.
type Multi []Driver

// Set implements Driver.
func (m Multi) Set(c Colour) error {
	var first error
	for _, d := range m {
		if err := d.Set(c); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Package energy implements [vad.Scorer] from frame RMS energy. It needs no
// model file and is the fallback when neither Silero nor WebRTC VAD is
// configured.
//
// The RMS of each frame is mapped linearly from [Floor, Ceiling] onto [0, 1]
// and averaged over a short sliding window.
package energy

import (
	"fmt"

	"github.com/nanobot-edge/nanobot/pkg/audio"
	"github.com/nanobot-edge/nanobot/pkg/provider/vad"
)

// Scorer is an RMS energy detector. Not safe for concurrent use.
type Scorer struct {
	floor   float64
	ceiling float64
	window  []float64
	next    int
	filled  int
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithRange sets the RMS values that map to probability 0 and 1.
// Defaults to 300 and 3000.
func WithRange(floor, ceiling float64) Option {
	return func(s *Scorer) {
		s.floor = floor
		s.ceiling = ceiling
	}
}

// WithWindow sets the smoothing window in frames. Defaults to 3.
func WithWindow(frames int) Option {
	return func(s *Scorer) {
		if frames > 0 {
			s.window = make([]float64, frames)
		}
	}
}

// New creates a Scorer.
func New(opts ...Option) (*Scorer, error) {
	s := &Scorer{floor: 300, ceiling: 3000, window: make([]float64, 3)}
	for _, o := range opts {
		o(s)
	}
	if s.ceiling <= s.floor || s.floor < 0 {
		return nil, fmt.Errorf("energy: invalid range [%g, %g]", s.floor, s.ceiling)
	}
	return s, nil
}

// Score implements [vad.Scorer].
func (s *Scorer) Score(frame audio.Frame) (float32, error) {
	p := (frame.RMS() - s.floor) / (s.ceiling - s.floor)
	p = min(max(p, 0), 1)

	s.window[s.next] = p
	s.next = (s.next + 1) % len(s.window)
	if s.filled < len(s.window) {
		s.filled++
	}
	var sum float64
	for i := range s.filled {
		sum += s.window[i]
	}
	return float32(sum / float64(s.filled)), nil
}

// Reset implements [vad.Scorer].
func (s *Scorer) Reset() {
	clear(s.window)
	s.next = 0
	s.filled = 0
}

// Close implements [vad.Scorer].
func (s *Scorer) Close() error { return nil }

// Ensure Scorer implements vad.Scorer at compile time.
var _ vad.Scorer = (*Scorer)(nil)

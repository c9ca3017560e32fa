// Package webrtc implements [vad.Scorer] with the WebRTC voice activity
// detector via github.com/maxhawkins/go-webrtcvad.
//
// WebRTC VAD classifies 10, 20 or 30 ms windows as voiced or unvoiced. The
// scorer slices each frame into 10 ms windows and reports the voiced fraction
// as the speech probability. Samples that do not fill a window are carried
// over to the next frame.
package webrtc

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/maxhawkins/go-webrtcvad"

	"github.com/nanobot-edge/nanobot/pkg/audio"
	"github.com/nanobot-edge/nanobot/pkg/provider/vad"
)

// Scorer is a WebRTC VAD session. Not safe for concurrent use.
type Scorer struct {
	vad        *webrtcvad.VAD
	mode       int
	sampleRate int
	carry      []int16
	last       float32
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithMode sets the aggressiveness (0 = least, 3 = most). Defaults to 2.
func WithMode(mode int) Option {
	return func(s *Scorer) { s.mode = mode }
}

// WithSampleRate sets the expected frame rate. WebRTC VAD accepts 8000,
// 16000, 32000 and 48000 Hz. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(s *Scorer) { s.sampleRate = rate }
}

// New creates a Scorer.
func New(opts ...Option) (*Scorer, error) {
	s := &Scorer{mode: 2, sampleRate: audio.DefaultSampleRate}
	for _, o := range opts {
		o(s)
	}
	if s.mode < 0 || s.mode > 3 {
		return nil, fmt.Errorf("webrtc: mode %d out of range [0, 3]", s.mode)
	}
	switch s.sampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return nil, fmt.Errorf("webrtc: sample rate %d: %w", s.sampleRate, vad.ErrFrameSize)
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scorer) open() error {
	v, err := webrtcvad.New()
	if err != nil {
		return fmt.Errorf("webrtc: create vad: %w", err)
	}
	v.SetMode(s.mode)
	s.vad = v
	return nil
}

// window returns the 10 ms window length in samples.
func (s *Scorer) window() int { return s.sampleRate / 100 }

// Score implements [vad.Scorer]. A frame shorter than one window returns the
// previous score.
func (s *Scorer) Score(frame audio.Frame) (float32, error) {
	if s.vad == nil {
		return 0, errors.New("webrtc: scorer is closed")
	}
	if frame.SampleRate != 0 && frame.SampleRate != s.sampleRate {
		return 0, fmt.Errorf("webrtc: frame at %d Hz, scorer at %d Hz: %w", frame.SampleRate, s.sampleRate, vad.ErrFrameSize)
	}
	samples := append(s.carry, frame.Samples...)
	win := s.window()

	var voiced, total int
	for len(samples) >= win {
		active, err := s.vad.Process(s.sampleRate, audio.SamplesToBytes(samples[:win]))
		if err != nil {
			return 0, fmt.Errorf("webrtc: process: %w", err)
		}
		if active {
			voiced++
		}
		total++
		samples = samples[win:]
	}
	s.carry = append(s.carry[:0:0], samples...)
	if total == 0 {
		return s.last, nil
	}
	s.last = float32(voiced) / float32(total)
	return s.last, nil
}

// Reset implements [vad.Scorer]. The detector is recreated to drop its
// internal smoothing state.
func (s *Scorer) Reset() {
	s.carry = nil
	s.last = 0
	if err := s.open(); err != nil {
		slog.Warn("webrtc vad: reset failed, keeping previous detector", "err", err)
	}
}

// Close implements [vad.Scorer].
func (s *Scorer) Close() error {
	s.vad = nil
	s.carry = nil
	return nil
}

// Ensure Scorer implements vad.Scorer at compile time.
var _ vad.Scorer = (*Scorer)(nil)

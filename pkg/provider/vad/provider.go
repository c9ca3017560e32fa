// Package vad defines the Scorer interface for Voice Activity Detection
// backends.
//
// A Scorer wraps a frame-level speech classifier (Silero VAD, WebRTC VAD, or
// a plain energy detector) and returns a speech probability per frame. Scorers
// are stateful: recurrent models carry hidden state from frame to frame, so
// Reset must be called between independent sessions (for example when the
// acoustic front end aborts a detection cycle).
//
// Scoring is synchronous and must not block; it runs inside the frame loop.
// A Scorer is owned by one goroutine and need not be safe for concurrent use.
package vad

import (
	"errors"

	"github.com/nanobot-edge/nanobot/pkg/audio"
)

// ErrFrameSize is returned when a frame's length or sample rate is not
// supported by the backend.
var ErrFrameSize = errors.New("vad: unsupported frame size or sample rate")

// Scorer classifies audio frames.
type Scorer interface {
	// Score returns the probability in [0, 1] that frame contains speech.
	Score(frame audio.Frame) (float32, error)

	// Reset clears all accumulated state without releasing resources.
	Reset()

	// Close releases the backend. Calling Close more than once is safe.
	Close() error
}

// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns one piece of text into raw 16-bit little-endian mono
// PCM, delivered in chunks as the backend produces them so playback can
// start before synthesis finishes. The caller splits long replies into
// sentences and synthesizes them one after another.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when Synthesize is called with blank text.
var ErrEmptyText = errors.New("tts: text must not be empty")

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize starts synthesis of text with the given voice and returns a
	// channel of PCM chunks at SampleRate. An empty voice selects the
	// provider's default.
	//
	// The channel is closed when synthesis is complete, fails, or ctx is
	// cancelled. Callers check ctx.Err() to tell cancellation from a
	// provider failure that ended the stream early. A non-nil error is
	// returned only when the request cannot be started.
	Synthesize(ctx context.Context, text, voice string) (<-chan []byte, error)

	// SampleRate returns the rate of the PCM this provider emits.
	SampleRate() int
}

// Package mock provides a test double for the stt.Provider interface.
//
// Set Text for a fixed transcript or Script for one transcript per call.
// Block makes Transcribe wait for context cancellation, which lets tests
// exercise barge-in and shutdown paths.
package mock

import (
	"context"
	"sync"

	"github.com/nanobot-edge/nanobot/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// WAV is a copy of the audio passed to Transcribe.
	WAV []byte
	// Language is the language argument.
	Language string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Text is returned when Script is exhausted.
	Text string

	// Script is consumed one entry per call before falling back to Text.
	Script []string

	// Err, if non-nil, is returned by every call.
	Err error

	// Block makes Transcribe wait until ctx is done.
	Block bool

	// --- Call records ---

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the scripted transcript.
func (p *Provider) Transcribe(ctx context.Context, wav []byte, language string) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranscribeCall{WAV: append([]byte(nil), wav...), Language: language})
	block, err := p.Block, p.Err
	text := p.Text
	if len(p.Script) > 0 {
		text, p.Script = p.Script[0], p.Script[1:]
	}
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

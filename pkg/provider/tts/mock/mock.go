// Package mock provides a test double for the tts.Provider interface.
//
// Chunks are emitted on the channel returned by Synthesize. With Hold set,
// the channel stays open after the last chunk until ctx is cancelled, which
// simulates a long utterance that can be interrupted.
package mock

import (
	"context"
	"sync"

	"github.com/nanobot-edge/nanobot/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the voice passed to Synthesize.
	Voice string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Chunks is emitted on every returned channel.
	Chunks [][]byte

	// Hold keeps the channel open after Chunks until ctx is done.
	Hold bool

	// Err, if non-nil, is returned from Synthesize.
	Err error

	// Rate is returned by SampleRate. Defaults to 16000.
	Rate int

	// --- Call records ---

	// Calls records every call to Synthesize in order.
	Calls []SynthesizeCall
}

// Synthesize records the call and streams Chunks.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) (<-chan []byte, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, SynthesizeCall{Text: text, Voice: voice})
	chunks, hold, err := p.Chunks, p.Hold, p.Err
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	ch := make(chan []byte)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- append([]byte(nil), c...):
			case <-ctx.Done():
				return
			}
		}
		if hold {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

// SampleRate implements tts.Provider.
func (p *Provider) SampleRate() int {
	if p.Rate == 0 {
		return 16000
	}
	return p.Rate
}

// Texts returns the text of every recorded call. Thread-safe.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Text
	}
	return out
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)

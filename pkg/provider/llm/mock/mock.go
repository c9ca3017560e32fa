// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the requests the agent sends and to
// feed controlled responses without a live LLM backend. All fields are safe
// to set before calling any method; mutating them during a concurrent call is
// the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    StreamScript: [][]llm.Chunk{
//	        {{ToolCalls: []llm.ToolCall{{ID: "1", Name: "get_current_time"}}, FinishReason: "tool_calls"}},
//	        {{Text: "It is noon."}, {FinishReason: "stop"}},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
)

// StreamCall records a single invocation of StreamCompletion.
type StreamCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
// Zero values for response fields cause methods to return zero values and nil errors.
// Set Err fields to inject errors.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// StreamScript holds one chunk sequence per StreamCompletion call, in
	// call order. Once exhausted, StreamChunks is used.
	StreamScript [][]llm.Chunk

	// StreamChunks is emitted by every StreamCompletion call beyond
	// StreamScript.
	StreamChunks []llm.Chunk

	// StreamErr, if non-nil, is returned as the error from StreamCompletion instead
	// of starting a channel.
	StreamErr error

	// BlockAfterChunks makes the stream stay open after its chunks until ctx
	// is cancelled, like a model that is still thinking.
	BlockAfterChunks bool

	// --- Call records (read after test) ---

	// StreamCalls records every invocation of StreamCompletion in order.
	StreamCalls []StreamCall
}

// StreamCompletion records the call and returns a channel that emits the
// scripted chunks. If StreamErr is set, it returns nil, StreamErr without
// opening a channel.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	p.mu.Lock()
	n := len(p.StreamCalls)
	p.StreamCalls = append(p.StreamCalls, StreamCall{Ctx: ctx, Req: req})
	if p.StreamErr != nil {
		err := p.StreamErr
		p.mu.Unlock()
		return nil, err
	}
	src := p.StreamChunks
	if n < len(p.StreamScript) {
		src = p.StreamScript[n]
	}
	chunks := make([]llm.Chunk, len(src))
	copy(chunks, src)
	block := p.BlockAfterChunks
	p.mu.Unlock()

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
		if block {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

// Calls returns a copy of StreamCalls. Thread-safe.
func (p *Provider) Calls() []StreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]StreamCall(nil), p.StreamCalls...)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StreamCalls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)

// Package mock provides a scripted test double for [agent.Agent].
//
// Example:
//
//	a := &mock.Agent{
//	    ProfileValue: agent.Profile{Name: "nanobot", WakeWord: "alexa_v0.1"},
//	    Reply:        "It is sunny. [FOLLOW]",
//	}
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/nanobot-edge/nanobot/internal/agent"
	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
)

// RespondCall records one Respond invocation.
type RespondCall struct {
	History []llm.Message
	Message string
}

// Agent is a mock implementation of agent.Agent.
type Agent struct {
	mu sync.Mutex

	// ProfileValue is returned by Profile.
	ProfileValue agent.Profile

	// Reply is returned by Respond. It is passed to onText in pieces split
	// after each ". ".
	Reply string

	// Replies, if non-empty, is consumed one entry per call before Reply is
	// used.
	Replies []string

	// Err is returned by Respond after the reply text was streamed.
	Err error

	// Block makes Respond wait for ctx to end and return ctx.Err().
	Block bool

	// --- Call records ---

	// Calls records every Respond invocation in order.
	Calls []RespondCall
}

// Profile implements agent.Agent.
func (a *Agent) Profile() agent.Profile {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ProfileValue
}

// Respond implements agent.Agent.
func (a *Agent) Respond(ctx context.Context, history []llm.Message, message string, onText func(string)) (string, error) {
	a.mu.Lock()
	a.Calls = append(a.Calls, RespondCall{History: append([]llm.Message(nil), history...), Message: message})
	reply := a.Reply
	if len(a.Replies) > 0 {
		reply, a.Replies = a.Replies[0], a.Replies[1:]
	}
	block, err := a.Block, a.Err
	a.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if onText != nil {
		for _, piece := range strings.SplitAfter(reply, ". ") {
			if piece = strings.TrimSpace(piece); piece != "" {
				onText(piece)
			}
		}
	}
	return reply, err
}

// CallCount returns the number of Respond calls. Thread-safe.
func (a *Agent) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Calls)
}

// LastCall returns the most recent Respond call. Thread-safe.
func (a *Agent) LastCall() (RespondCall, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.Calls) == 0 {
		return RespondCall{}, false
	}
	return a.Calls[len(a.Calls)-1], true
}

var _ agent.Agent = (*Agent)(nil)

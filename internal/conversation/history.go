package conversation

import (
	"sync"
	"time"

	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
)

// DefaultHistoryTTL is the idle gap after which the history is cleared.
const DefaultHistoryTTL = 60 * time.Minute

// History is the chat history shared by all agents. Safe for concurrent use
// so tools can clear it while a turn is in progress.
type History struct {
	mu       sync.Mutex
	messages []llm.Message
	lastTurn time.Time
	ttl      time.Duration
	now      func() time.Time
}

// NewHistory returns an empty History that expires after ttl of inactivity.
// A non-positive ttl disables expiry.
func NewHistory(ttl time.Duration) *History {
	return &History{ttl: ttl, now: time.Now}
}

// SetClock replaces the time source.
func (h *History) SetClock(now func() time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = now
}

// Messages returns a copy of the history.
func (h *History) Messages() []llm.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]llm.Message(nil), h.messages...)
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// AppendTurn appends the user message and the assistant reply, keeps the
// newest limit messages, and marks the turn time.
func (h *History) AppendTurn(user, assistant string, limit int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages,
		llm.Message{Role: llm.RoleUser, Content: user},
		llm.Message{Role: llm.RoleAssistant, Content: assistant},
	)
	if limit > 0 && len(h.messages) > limit {
		h.messages = append([]llm.Message(nil), h.messages[len(h.messages)-limit:]...)
	}
	h.lastTurn = h.now()
}

// Restore replaces the history with msgs and sets the last turn time.
func (h *History) Restore(msgs []llm.Message, lastTurn time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append([]llm.Message(nil), msgs...)
	h.lastTurn = lastTurn
}

// Clear drops every message.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = nil
}

// ExpireIfIdle clears the history when more than the TTL has passed since
// the last completed turn. It reports whether anything was cleared.
func (h *History) ExpireIfIdle() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ttl <= 0 || len(h.messages) == 0 || h.lastTurn.IsZero() {
		return false
	}
	if h.now().Sub(h.lastTurn) <= h.ttl {
		return false
	}
	h.messages = nil
	return true
}
